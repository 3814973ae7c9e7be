package apikey

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware(t *testing.T) {
	key, hash, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "nk_") {
		t.Errorf("key %q missing prefix", key)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		presented  string
		wantStatus int
	}{
		{"valid key", hash, key, http.StatusNoContent},
		{"wrong key", hash, "nk_wrong", http.StatusUnauthorized},
		{"missing key", hash, "", http.StatusUnauthorized},
		{"auth disabled", "", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/queue", nil)
			if tt.presented != "" {
				req.Header.Set(Header, tt.presented)
			}
			rec := httptest.NewRecorder()
			Middleware(tt.configured, next).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
