package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	appI18n "github.com/pavelanni/kwizkit/internal/i18n"
	"github.com/pavelanni/kwizkit/internal/model"
	"github.com/pavelanni/kwizkit/internal/tablesession"
)

type codedError struct {
	err  error
	code int
	msg  string // i18n message id
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

func withCode(err error, code int, msgID string) error {
	return &codedError{err: err, code: code, msg: msgID}
}

func badRequest(format string, args ...any) error {
	return withCode(fmt.Errorf(format, args...), http.StatusBadRequest, "ErrBadRequest")
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Fields  []model.FieldError `json:"fields,omitempty"`
}

// responseCode maps an error to its HTTP status and message id.
func responseCode(err error) (int, string) {
	var (
		ce *codedError
		ve *model.ValidationError
		te *model.TransactionError
	)
	switch {
	case errors.As(err, &ce):
		return ce.code, ce.msg
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "ErrValidation"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "ErrNotFound"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "ErrConflict"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "ErrForbidden"
	case errors.Is(err, tablesession.ErrUnsavedChanges):
		return http.StatusConflict, "ErrUnsavedChanges"
	case errors.As(err, &te):
		return http.StatusInternalServerError, "ErrSaveFailed"
	}
	return http.StatusInternalServerError, "ErrInternal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msgID := responseCode(err)
	body := errorBody{Error: err.Error(), Message: appI18n.T(r.Context(), msgID)}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		// Internal details stay in the log.
		body.Error = http.StatusText(code)
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error serializing response body", "error", err)
	}
}

// parseBody decodes a JSON request body into dest and validates it.
func parseBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		return badRequest("error parsing request body: %v", err)
	}
	return model.ValidateStruct(dest)
}
