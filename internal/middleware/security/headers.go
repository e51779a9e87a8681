package security

import "net/http"

// HeadersConfig holds the response headers applied to every API response.
type HeadersConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CacheControl        string
}

// DefaultHeadersConfig suits a JSON API that serves no documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		CacheControl:        "no-store",
	}
}

// HeadersMiddleware applies security headers to responses
type HeadersMiddleware struct {
	config HeadersConfig
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	return &HeadersMiddleware{config: config}
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		set := func(k, v string) {
			if v != "" {
				headers.Set(k, v)
			}
		}
		set("Content-Security-Policy", h.config.CSP)
		set("X-Frame-Options", h.config.XFrameOptions)
		set("X-Content-Type-Options", h.config.XContentTypeOptions)
		set("Referrer-Policy", h.config.ReferrerPolicy)
		set("Cache-Control", h.config.CacheControl)
		next.ServeHTTP(w, r)
	})
}
