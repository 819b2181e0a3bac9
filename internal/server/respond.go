package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
)

const codeSuccess = "SUCCESS"

// envelope wraps every JSON response.
type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: codeSuccess, Message: "ok", Data: data})
}

func created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Code: codeSuccess, Message: "created", Data: data})
}

// fail renders err. Unexpected errors are logged in full and answered with
// a generic message.
func fail(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.ErrorWith("request failed", err, map[string]any{"method": r.Method, "path": r.URL.Path})
	} else {
		log.Debugf("request rejected: %v", err)
	}
	writeJSON(w, status, envelope{Code: string(errs.CodeOf(err)), Message: errs.PublicMessage(err)})
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.New(errs.ErrKindInvalidInput, "request body is empty").WithCode(errs.CodeNoValue)
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "malformed request body", err).WithCode(errs.CodeInvalidParameter)
	}
	return nil
}
