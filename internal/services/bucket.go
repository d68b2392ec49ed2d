package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/envutil"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
)

// BucketService stores user health-data files. Only the most recent
// upload per user is retained; older objects are cleaned up after each
// successful upload.
type BucketService interface {
	UploadHealthData(ctx context.Context, file io.Reader, userID, filename string) (string, error)
	Download(ctx context.Context, fileURL string) (io.ReadCloser, error)
	Delete(ctx context.Context, fileURL string) bool
	PublicURL(key string) string
}

// errObjectNotExist is the store-agnostic absence signal; backends
// translate their own sentinel into it.
var errObjectNotExist = errors.New("object does not exist")

// objectStore is the minimal blob surface the service needs. delete is
// idempotent: removing an absent object is not an error.
type objectStore interface {
	write(ctx context.Context, key string, r io.Reader) error
	open(ctx context.Context, key string) (io.ReadCloser, error)
	delete(ctx context.Context, key string) error
	list(ctx context.Context, prefix string) ([]string, error)
}

type bucketService struct {
	log        *logger.Logger
	store      objectStore
	bucketName string
	baseURL    string
}

// NewBucketService builds a client for the configured bucket.
// STORAGE_ENDPOINT overrides the API endpoint for emulators and
// S3-compatible gateways; STORAGE_CREDENTIALS_FILE points at a service
// account key, otherwise ADC applies.
func NewBucketService(log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")

	bucket := envutil.String("STORAGE_BUCKET_NAME", "")
	if bucket == "" {
		return nil, fmt.Errorf("STORAGE_BUCKET_NAME is not set")
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credFile := envutil.String("STORAGE_CREDENTIALS_FILE", ""); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	} else {
		serviceLog.Warn("STORAGE_CREDENTIALS_FILE is not set, relying on application default credentials")
	}
	endpoint := envutil.String("STORAGE_ENDPOINT", "")
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	stClient, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	baseURL := "https://storage.googleapis.com"
	if endpoint != "" {
		baseURL = strings.TrimRight(endpoint, "/")
	}

	return &bucketService{
		log:        serviceLog,
		store:      &gcsStore{client: stClient, bucket: bucket},
		bucketName: bucket,
		baseURL:    baseURL,
	}, nil
}

func healthDataPrefix(userID string) string {
	return fmt.Sprintf("users/%s/health_data/", userID)
}

// UploadHealthData writes the file under a timestamp-sortable key and
// then removes any older objects for the same user. Cleanup failures are
// logged, not returned: the new upload already succeeded.
func (bs *bucketService) UploadHealthData(ctx context.Context, file io.Reader, userID, filename string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", apierr.Validation("user id is required")
	}
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		return "", apierr.Validation("filename is required")
	}

	key := fmt.Sprintf("%s%s_%s", healthDataPrefix(userID), time.Now().UTC().Format("20060102_150405"), filename)

	wctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := bs.store.write(wctx, key, file); err != nil {
		return "", apierr.Storage(fmt.Errorf("failed to write object %q: %w", key, err))
	}

	if err := bs.cleanupOlder(ctx, userID, key); err != nil {
		bs.log.Warn("Failed to clean up older health data objects", "user_id", userID, "error", err)
	}

	return bs.PublicURL(key), nil
}

// cleanupOlder deletes every object under the user's health-data prefix
// except keep. Keys embed an UTC timestamp so lexical order is
// chronological, but deletion is by exclusion rather than comparison so
// a clock skew never orphans objects.
func (bs *bucketService) cleanupOlder(ctx context.Context, userID, keep string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	keys, err := bs.store.list(ctx, healthDataPrefix(userID))
	if err != nil {
		return fmt.Errorf("failed to list objects: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range keys {
		if name == keep {
			continue
		}
		name := name
		g.Go(func() error {
			if err := bs.store.delete(gctx, name); err != nil {
				return fmt.Errorf("failed to delete %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Download opens the object a previously returned URL points at.
func (bs *bucketService) Download(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	key, err := bs.keyFromURL(fileURL)
	if err != nil {
		return nil, err
	}

	r, err := bs.store.open(ctx, key)
	if err != nil {
		if errors.Is(err, errObjectNotExist) {
			return nil, apierr.NotFound("object %q does not exist", key)
		}
		return nil, apierr.Storage(fmt.Errorf("failed to open object %q: %w", key, err))
	}
	return r, nil
}

// Delete is best-effort: it reports whether the object is gone and never
// surfaces an error to callers.
func (bs *bucketService) Delete(ctx context.Context, fileURL string) bool {
	key, err := bs.keyFromURL(fileURL)
	if err != nil {
		bs.log.Warn("Refusing to delete unrecognized file URL", "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := bs.store.delete(ctx, key); err != nil {
		bs.log.Warn("Failed to delete object", "key", key, "error", err)
		return false
	}
	return true
}

func (bs *bucketService) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", bs.baseURL, bs.bucketName, key)
}

// keyFromURL reverses PublicURL. URLs from other buckets or hosts are
// rejected so a stored reference can never address foreign objects.
func (bs *bucketService) keyFromURL(fileURL string) (string, error) {
	prefix := fmt.Sprintf("%s/%s/", bs.baseURL, bs.bucketName)
	if !strings.HasPrefix(fileURL, prefix) {
		return "", apierr.InvalidReference("file URL %q is not in bucket %q", fileURL, bs.bucketName)
	}
	key := strings.TrimPrefix(fileURL, prefix)
	if key == "" {
		return "", apierr.InvalidReference("file URL has an empty object key")
	}
	return key, nil
}

// ----- GCS backend -----

type gcsStore struct {
	client *storage.Client
	bucket string
}

func (g *gcsStore) write(ctx context.Context, key string, r io.Reader) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *gcsStore) open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errObjectNotExist
		}
		return nil, err
	}
	return r, nil
}

func (g *gcsStore) delete(ctx context.Context, key string) error {
	if err := g.client.Bucket(g.bucket).Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (g *gcsStore) list(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
}
