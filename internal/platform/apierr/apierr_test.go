package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusAndCodeMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", Validation("bad input"), http.StatusBadRequest, CodeValidation},
		{"upstream", Upstream(errors.New("boom")), http.StatusBadGateway, CodeUpstream},
		{"storage", Storage(errors.New("boom")), http.StatusInternalServerError, CodeStorage},
		{"not_found", NotFound("missing"), http.StatusNotFound, CodeNotFound},
		{"invalid_reference", InvalidReference("foreign url"), http.StatusNotFound, CodeInvalidReference},
		{"auth", Auth(errors.New("bad token")), http.StatusUnauthorized, CodeAuth},
		{"unavailable", Unavailable("storage off"), http.StatusServiceUnavailable, CodeUnavailable},
		{"unknown", errors.New("plain"), http.StatusInternalServerError, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusOf(tc.err); got != tc.wantStatus {
				t.Fatalf("StatusOf=%d, want %d", got, tc.wantStatus)
			}
			if got := CodeOf(tc.err); got != tc.wantCode {
				t.Fatalf("CodeOf=%q, want %q", got, tc.wantCode)
			}
		})
	}
}

func TestWrappedErrorsKeepTheirStatus(t *testing.T) {
	inner := NotFound("study missing")
	wrapped := fmt.Errorf("during outcome callback: %w", inner)

	if got := StatusOf(wrapped); got != http.StatusNotFound {
		t.Fatalf("StatusOf(wrapped)=%d, want 404", got)
	}
	if got := CodeOf(wrapped); got != CodeNotFound {
		t.Fatalf("CodeOf(wrapped)=%q", got)
	}
	if !errors.Is(wrapped, inner) {
		t.Fatal("wrapping must preserve identity")
	}
}
