package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

const maxJSONBody = 1 << 20

// envelope wraps every successful body. Warning is set when the change was
// applied but could not be saved.
type envelope struct {
	Data    any    `json:"data,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type errorBody struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// errBadRequest marks a body that is not the JSON we expect.
var errBadRequest = errors.New("malformed request body")

func encodeEnvelope(data any) ([]byte, error) {
	body, err := json.Marshal(envelope{Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return body, nil
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult answers a command. A storage failure still reports success,
// with the failure as a warning.
func writeResult(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err != nil {
		var se *core.StorageError
		if !errors.As(err, &se) {
			writeError(w, r, err)
			return
		}
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Change applied but not saved",
			applog.FieldRecordKey, se.Key, applog.FieldError, se.Err)
		writeJSON(w, status, envelope{Data: data, Warning: "saved in memory only: " + se.Error()})
		return
	}
	writeJSON(w, status, envelope{Data: data})
}

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	var (
		ve *core.ValidationError
		nf *core.NotFoundError
		fe *core.ImportFormatError
		mb *http.MaxBytesError
	)
	switch {
	case errors.Is(err, core.ErrNoActiveUser):
		return http.StatusUnauthorized
	case errors.As(err, &nf):
		if nf.What == "credentials" {
			return http.StatusUnauthorized
		}
		return http.StatusNotFound
	case errors.As(err, &ve), errors.As(err, &fe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &mb):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var (
		ve *core.ValidationError
		fe *core.ImportFormatError
	)
	switch {
	case errors.As(err, &ve):
		body.Field = ve.Field
	case errors.As(err, &fe):
		body.Missing = fe.Missing
	}

	if status == http.StatusInternalServerError {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, r.Method+" "+r.URL.Path)
		body = errorBody{Error: "internal error"}
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type %q", errBadRequest, ct)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mb *http.MaxBytesError
		if errors.As(err, &mb) {
			return err
		}
		if errors.Is(err, core.ErrInvalidAmount) {
			return core.NewValidationError("amount", core.ErrInvalidAmount)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadRequest)
	}
	return nil
}
