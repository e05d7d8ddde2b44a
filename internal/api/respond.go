package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/goodtune/apextrack/internal/usage"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps a tracker error kind to an HTTP status.
func statusFor(kind usage.Kind) int {
	switch kind {
	case usage.KindNotFound:
		return http.StatusNotFound
	case usage.KindConflict, usage.KindInvalidTransition:
		return http.StatusConflict
	case usage.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeTrackerError reports a tracker failure. Unclassified errors are
// logged and hidden behind a generic message.
func writeTrackerError(w http.ResponseWriter, logger zerolog.Logger, err error, msg string) {
	status := statusFor(usage.KindOf(err))
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
		writeError(w, status, msg)
		return
	}

	var e *usage.Error
	if errors.As(err, &e) && e.Message != "" {
		writeError(w, status, e.Message)
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
