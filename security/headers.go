package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets security headers on OAuth and contacts responses.
// HSTS is only sent when baseURL uses https.
func SetSecurityHeaders(w http.ResponseWriter, baseURL string) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(baseURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Token and contact responses must never be cached
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}

// HeadersMiddleware applies SetSecurityHeaders to every response
func HeadersMiddleware(baseURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetSecurityHeaders(w, baseURL)
			next.ServeHTTP(w, r)
		})
	}
}
