package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
)

// ErrorResponse is the body written by BadRequest and InternalServerError.
type ErrorResponse struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// JSON writes v encoded in JSON with the given status code.
func JSON(w http.ResponseWriter, statusCode int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(b)
}

func BadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, err)
}

func NotFound(w http.ResponseWriter, err error) {
	writeError(w, http.StatusNotFound, err)
}

// InternalServerError logs err and writes a generic error response.
func InternalServerError(w http.ResponseWriter, err error) {
	logs.WithTag("status_code", http.StatusInternalServerError).Error(err)
	writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	b, _ := json.Marshal(ErrorResponse{
		Type:    errors.Type(err),
		Message: err.Error(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(b)
}
