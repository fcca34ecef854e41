package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeBasePath(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"root", "/", "", false},
		{"trim", "  /  ", "", false},
		{"simple", "foo", "/foo", false},
		{"nested", "foo/bar", "/foo/bar", false},
		{"leading", "/foo/bar", "/foo/bar", false},
		{"trailing", "/foo/bar/", "/foo/bar", false},
		{"double", "foo//bar", "/foo/bar", false},
		{"dot", "/./", "", true},
		{"dotdot", "/../", "", true},
		{"withdot", "/foo/../bar", "", true},
		{"scheme", "http://example", "", true},
		{"query", "/foo?bar", "", true},
		{"fragment", "/foo#bar", "", true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeBasePath(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeBasePath(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestWrapBasePath(t *testing.T) {
	h := http.NewServeMux()
	h.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := WrapBasePath("/base", h)
	request := httptest.NewRequest(http.MethodGet, "/base/health", nil)
	resp := httptest.NewRecorder()
	wrapped.ServeHTTP(resp, request)
	if resp.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.Result().StatusCode, http.StatusOK)
	}
}

func TestWrapBasePathRedirectsBareBase(t *testing.T) {
	wrapped := WrapBasePath("/v1", http.NewServeMux())
	resp := httptest.NewRecorder()
	wrapped.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1", nil))
	if resp.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusMovedPermanently)
	}
	if loc := resp.Header().Get("Location"); loc != "/v1/" {
		t.Fatalf("Location = %q, want /v1/", loc)
	}
}

func TestWrapBasePathEmptyBase(t *testing.T) {
	h := http.NewServeMux()
	if got := WrapBasePath("", h); got != http.Handler(h) {
		t.Fatalf("empty base should return the handler unchanged")
	}
}
