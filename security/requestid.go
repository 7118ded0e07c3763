package security

import (
	"context"
	"net/http"
	"regexp"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// requestIDLength is the length of generated request IDs
const requestIDLength = 22

// upstream IDs are only reused when they cannot smuggle anything into a header
var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the request ID stored in ctx, or ""
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware tags every request with an ID. A well-formed ID sent by
// an upstream proxy is kept; otherwise a random one is generated. The ID is
// echoed in the response and stored in the request context.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !requestIDPattern.MatchString(id) {
			generated, err := GenerateRandomString(requestIDLength)
			if err != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			id = generated
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
