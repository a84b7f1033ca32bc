package middleware

import "net/http"

// DefaultMaxBodyBytes caps request bodies on mutating routes (1 MiB). Inline
// kubeconfigs are the largest expected payload and fit comfortably.
const DefaultMaxBodyBytes = 1 << 20

// MaxBodySize limits request body size on methods that carry one. GET, HEAD
// and DELETE are not limited.
func MaxBodySize(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}
