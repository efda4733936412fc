package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"findash/internal/core"
	applog "findash/internal/log"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation, core.KindConfiguration:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict, core.KindBusy:
		return http.StatusConflict
	case core.KindUpstream:
		return http.StatusBadGateway
	case core.KindIntegrity:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError answers with the error's code. Internal errors are logged
// and their text is not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Error: err.Error(), Code: core.CodeOf(err)}

	logger := applog.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err, applog.FieldErrorCode, body.Code)
		if kind == core.KindInternal {
			body.Error = "internal error"
		}
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldError, err, applog.FieldErrorCode, body.Code)
	}
	writeJSON(w, status, body)
}

var errBadJSON = core.Validation("invalid_body", "request body is not valid JSON")

// decodeJSON reads a JSON object into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errBadJSON
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntax) || errors.As(err, &typeErr) {
			return core.Validation("invalid_body", err.Error())
		}
		return errBadJSON
	}
	return nil
}
