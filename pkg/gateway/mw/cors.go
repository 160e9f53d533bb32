package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/vai-friend/pkg/gateway/config"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, " + RequestIDHeader
	corsMaxAge  = "600"
)

// CORS answers preflights from allowlisted origins and decorates their
// other responses. Requests from unlisted origins pass through untouched,
// but their preflights are refused.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		allowed := origin != "" && OriginAllowed(cfg, origin)
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

		if allowed {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if !preflight {
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			}
		}
		if !preflight {
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			http.Error(w, "cors preflight not allowed", http.StatusForbidden)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		w.WriteHeader(http.StatusNoContent)
	})
}

// OriginAllowed reports whether origin is allowlisted. A "*" entry allows
// every origin.
func OriginAllowed(cfg config.Config, origin string) bool {
	if _, ok := cfg.CORSAllowedOrigins["*"]; ok {
		return true
	}
	_, ok := cfg.CORSAllowedOrigins[origin]
	return ok
}
