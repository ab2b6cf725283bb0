package errors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// Response is the JSON body written for every failed request.
type Response struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteHTTP renders err with the status mapped from its code.
// Errors without a code are treated as internal and their text is not exposed.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if !As(err, &e) {
		slog.Error("Unhandled error", "path", r.URL.Path, "err", err)
		e = Internal("An internal error occurred")
	}
	if e.Code == ErrCodeInternal {
		if e.Err != nil {
			slog.Error("Internal error", "path", r.URL.Path, "message", e.Message, "err", e.Err)
		}
		e = &Error{Code: ErrCodeInternal, Message: "An internal error occurred"}
	}

	render.Status(r, e.HTTPStatusCode())
	render.JSON(w, r, Response{
		Error:   string(e.Code),
		Message: e.Message,
		Details: e.Details,
	})
}
