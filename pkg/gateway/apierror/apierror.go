// Package apierror maps errors to the JSON error envelope.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vango-go/vai-friend/pkg/core"
	"github.com/vango-go/vai-friend/pkg/core/orchestrator"
	"github.com/vango-go/vai-friend/pkg/store"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// known lists the sentinel errors with a fixed client-facing form. Anything
// else becomes an opaque internal error.
var known = []struct {
	target error
	status int
	err    core.Error
}{
	{context.DeadlineExceeded, http.StatusGatewayTimeout, core.Error{Type: core.ErrAPI, Message: "request timeout"}},
	{context.Canceled, http.StatusRequestTimeout, core.Error{Type: core.ErrAPI, Message: "request cancelled", Code: "cancelled"}},
	{store.ErrNotFound, http.StatusNotFound, core.Error{Type: core.ErrNotFound, Message: "session not found"}},
	{orchestrator.ErrStopped, http.StatusServiceUnavailable, core.Error{Type: core.ErrUnavailable, Message: "orchestrator is not running", Code: "stopped"}},
}

var typeStatus = map[core.ErrorType]int{
	core.ErrInvalidRequest: http.StatusBadRequest,
	core.ErrNotFound:       http.StatusNotFound,
	core.ErrUnavailable:    http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status used for errors of type t.
func StatusFor(t core.ErrorType) int {
	if status, ok := typeStatus[t]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError returns a copy of the client-facing error for err, stamped with
// requestID, and its HTTP status.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}
	out, status := classify(err)
	out.RequestID = requestID
	return &out, status
}

func classify(err error) (core.Error, int) {
	var ce *core.Error
	if errors.As(err, &ce) && ce != nil {
		return *ce, StatusFor(ce.Type)
	}
	for _, k := range known {
		if errors.Is(err, k.target) {
			return k.err, k.status
		}
	}
	return core.Error{Type: core.ErrAPI, Message: "internal error"}, http.StatusInternalServerError
}

// Write encodes err as a JSON envelope.
func Write(w http.ResponseWriter, status int, err *core.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: err})
}

// Respond classifies err and writes it.
func Respond(w http.ResponseWriter, err error, requestID string) {
	ce, status := FromError(err, requestID)
	Write(w, status, ce)
}
