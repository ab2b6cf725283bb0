package audit

import (
	"context"
	"net/http"
)

type contextKey string

const metaKey contextKey = "audit_request_meta"

// RequestMeta is the client information stamped onto every audit row
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta returns a copy of ctx carrying meta
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey, meta)
}

// MetaFromContext returns the request metadata in ctx, or the zero value.
func MetaFromContext(ctx context.Context) RequestMeta {
	if meta, ok := ctx.Value(metaKey).(RequestMeta); ok {
		return meta
	}
	return RequestMeta{}
}

// Middleware stores the resolved client IP and user agent in the request context
// so audit rows written deeper in the call stack carry them.
func Middleware(clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithRequestMeta(r.Context(), RequestMeta{
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
