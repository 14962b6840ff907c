// Package shield provides the HTTP middleware stack for the zapper admin API.
// It consolidates security headers, body limits, request tracing, basic-auth
// verification, and HEAD method handling into a single importable package.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack() {
//	    r.Use(mw)
//	}
//	r.Use(shield.BasicAuth("zapper", user, passHash))
//
// The daemon mounts /health before the auth middleware so probes stay
// credential-free.
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// maxBodyBytes caps admin request bodies. The largest legitimate payload is
// a lineup upsert, a few hundred bytes of JSON.
const maxBodyBytes = 64 * 1024

// APIStack returns the standard middleware stack for the admin API, ordered:
// HeadToGet → SecurityHeaders → MaxBody → TraceID. Rate limiting and auth
// are deployment decisions, so the daemon layers those on separately.
func APIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders,
		MaxBody(maxBodyBytes),
		TraceID,
	}
}

// HeadToGet rewrites HEAD to GET before routing so handlers registered with
// r.Get answer probes instead of returning 405. net/http strips the body
// from HEAD responses on the way out.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBody caps every request body at maxBytes. Oversized bodies surface to
// handlers as *http.MaxBytesError during decode, which they report as a 400.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
