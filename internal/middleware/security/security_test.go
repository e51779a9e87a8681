package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIP(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct public peer", "203.0.113.7:5555", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy with XFF", "10.0.0.2:5555", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy with X-Real-IP", "127.0.0.1:5555", "", "198.51.100.9", "198.51.100.9"},
		{"trusted proxy with garbage headers", "192.168.1.1:80", "nope", "also-nope", "192.168.1.1"},
		{"remote without port", "203.0.113.7", "", "", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/expenses", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddTrustedProxyRejectsBadCIDR(t *testing.T) {
	if err := NewDetector().AddTrustedProxy("not-a-cidr"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDetectorMiddleware(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/expenses?q="+strings.Repeat("a", 3000), nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("long URL: status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/expenses", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("plain request: status = %d", rr.Code)
	}
	if d.Rejected() != 1 {
		t.Fatalf("rejected = %d, want 1", d.Rejected())
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	for k, v := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rr.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
