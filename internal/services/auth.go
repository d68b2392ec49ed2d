package services

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/envutil"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
)

// Claims is the verified identity attached to every protected request.
type Claims struct {
	Subject string
}

type AuthService interface {
	VerifyToken(ctx context.Context, token string) (*Claims, error)
}

type authService struct {
	log      *logger.Logger
	issuer   string
	audience string
	jwks     *jwksCache
}

// NewAuthService builds a verifier against the configured JWKS endpoint.
// The issuer is everything before the well-known suffix of the JWKS URL.
// When JWT_AUDIENCE is unset the audience claim is not checked.
func NewAuthService(log *logger.Logger, httpClient *http.Client) (AuthService, error) {
	serviceLog := log.With("service", "AuthService")

	jwksURL := envutil.String("JWKS_URL", "")
	if jwksURL == "" {
		return nil, fmt.Errorf("JWKS_URL is not set")
	}
	audience := envutil.String("JWT_AUDIENCE", "")
	if audience == "" {
		serviceLog.Warn("JWT_AUDIENCE is not set; audience claim will not be checked")
	}

	issuer := jwksURL
	if i := strings.Index(jwksURL, "/.well-known/"); i >= 0 {
		issuer = jwksURL[:i]
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	cache := newJWKSCache(httpClient)
	cache.setURL(jwksURL)

	return &authService{
		log:      serviceLog,
		issuer:   issuer,
		audience: audience,
		jwks:     cache,
	}, nil
}

func (s *authService) VerifyToken(ctx context.Context, tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, apierr.Auth(errors.New("missing token"))
	}

	// Tokens without a structural delimiter are treated as opaque subject
	// identifiers. Development convenience only; the JWKS path is the
	// production one.
	if !strings.Contains(tokenString, ".") {
		return &Claims{Subject: tokenString}, nil
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "ES256"}))
	claims := jwt.MapClaims{}

	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, fmt.Errorf("missing kid")
		}
		return s.jwks.getKey(ctx, kid)
	})
	if err != nil {
		return nil, apierr.Auth(fmt.Errorf("token verification failed: %w", err))
	}
	if tok == nil || !tok.Valid {
		return nil, apierr.Auth(errors.New("invalid token"))
	}

	iss, _ := claims["iss"].(string)
	if iss != s.issuer {
		return nil, apierr.Auth(fmt.Errorf("issuer mismatch: %q", iss))
	}
	if s.audience != "" && !audContains(claims["aud"], s.audience) {
		return nil, apierr.Auth(errors.New("audience mismatch"))
	}

	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return nil, apierr.Auth(errors.New("missing sub claim"))
	}
	return &Claims{Subject: sub}, nil
}

func audContains(aud any, required string) bool {
	switch v := aud.(type) {
	case string:
		return v == required
	case []any:
		for _, it := range v {
			if s, ok := it.(string); ok && s == required {
				return true
			}
		}
	}
	return false
}

// ----- JWKS cache (RSA + EC) -----

type jwksCache struct {
	httpClient *http.Client

	mu      sync.RWMutex
	jwksURL string
	keys    map[string]any

	fetchedAt time.Time
	ttl       time.Duration
}

func newJWKSCache(httpClient *http.Client) *jwksCache {
	return &jwksCache{
		httpClient: httpClient,
		keys:       map[string]any{},
		ttl:        6 * time.Hour,
	}
}

func (j *jwksCache) setURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jwksURL = url
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`

	// RSA
	N string `json:"n"`
	E string `json:"e"`

	// EC
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (j *jwksCache) getKey(ctx context.Context, kid string) (any, error) {
	j.mu.RLock()
	key := j.keys[kid]
	stale := time.Since(j.fetchedAt) > j.ttl
	url := j.jwksURL
	j.mu.RUnlock()

	if key != nil && !stale {
		return key, nil
	}

	if err := j.refresh(ctx, url); err != nil {
		// Serve a cached key if one exists rather than failing every
		// request during a JWKS outage.
		j.mu.RLock()
		key = j.keys[kid]
		j.mu.RUnlock()
		if key != nil {
			return key, nil
		}
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	key = j.keys[kid]
	if key == nil {
		return nil, fmt.Errorf("kid not found in jwks: %s", kid)
	}
	return key, nil
}

func (j *jwksCache) refresh(ctx context.Context, url string) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	res, err := j.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("jwks fetch failed: %s", res.Status)
	}

	var set jwkSet
	if err := json.NewDecoder(res.Body).Decode(&set); err != nil {
		return err
	}

	next := map[string]any{}
	for _, k := range set.Keys {
		if strings.TrimSpace(k.Kid) == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			if pub, err := rsaFromModExp(k.N, k.E); err == nil {
				next[k.Kid] = pub
			}
		case "EC":
			if pub, err := ecdsaFromXY(k.Crv, k.X, k.Y); err == nil {
				next[k.Kid] = pub
			}
		}
	}
	if len(next) == 0 {
		return fmt.Errorf("jwks contained no usable keys")
	}

	j.mu.Lock()
	j.keys = next
	j.fetchedAt = time.Now()
	j.mu.Unlock()
	return nil
}

func rsaFromModExp(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nb)
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

func ecdsaFromXY(crv, xB64, yB64 string) (*ecdsa.PublicKey, error) {
	if crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve: %s", crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(xB64)
	if err != nil {
		return nil, err
	}
	yb, err := base64.RawURLEncoding.DecodeString(yB64)
	if err != nil {
		return nil, err
	}

	x := new(big.Int).SetBytes(xb)
	y := new(big.Int).SetBytes(yb)
	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, fmt.Errorf("invalid EC point")
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}
