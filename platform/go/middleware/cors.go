package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// DefaultAllowOrigins are the browser origins allowed when none are configured.
var DefaultAllowOrigins = []string{
	"http://localhost:4200",
	"https://performance-appraisal.netlify.app",
}

// CORS echoes the request Origin back when it is in allowOrigins ("*" allows any origin) and
// answers preflight requests directly.
func CORS(allowOrigins []string) func(http.Handler) http.Handler {
	if len(allowOrigins) == 0 {
		allowOrigins = DefaultAllowOrigins
	}
	allowAny := slices.Contains(allowOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAny || slices.Contains(allowOrigins, origin)) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,Idempotency-Key")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseOrigins splits a comma separated origin list.
func ParseOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.TrimSuffix(o, "/"))
		}
	}
	return out
}
