package mw

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/vango-go/vai-friend/pkg/core"
	"github.com/vango-go/vai-friend/pkg/gateway/apierror"
)

// Recover turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can abort the response.
func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			reqID, _ := RequestIDFrom(r.Context())
			logger.Error("handler panic",
				"panic", v,
				"request_id", reqID,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			e := core.NewAPIError("internal error")
			e.RequestID = reqID
			apierror.Write(w, http.StatusInternalServerError, e)
		}()
		next.ServeHTTP(w, r)
	})
}
