package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/vai-friend/pkg/core"
	"github.com/vango-go/vai-friend/pkg/gateway/apierror"
	"github.com/vango-go/vai-friend/pkg/gateway/mw"
)

func requestID(r *http.Request) string {
	id, _ := mw.RequestIDFrom(r.Context())
	return id
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apierror.Respond(w, err, requestID(r))
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	e := core.NewInvalidRequestError("method not allowed")
	e.Code = "method_not_allowed"
	e.RequestID = requestID(r)
	apierror.Write(w, http.StatusMethodNotAllowed, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NotFoundHandler answers every unrouted path.
type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, core.NewNotFoundError("no route for "+r.URL.Path))
}
