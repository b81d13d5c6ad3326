package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
)

// =============================================================================
// RESPONSE ENVELOPE
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string, details ...string) {
	writeJSON(w, status, Envelope{Success: false, Error: message, Details: details})
}

// inputError is a request that failed decoding or validation.
type inputError struct {
	message string
	details []string
}

func (e *inputError) Error() string { return e.message }
func (e *inputError) Unwrap() error { return core.ErrInvalidInput }

// handleError maps domain errors onto status codes. Unknown errors are 500s.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ie *inputError
		fe *core.FieldError
	)
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.message, ie.details...)
	case errors.As(err, &fe) && len(fe.Fields) > 0:
		writeError(w, http.StatusBadRequest, err.Error(), fe.Fields...)
	case core.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case core.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case core.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// =============================================================================
// REQUEST DECODING
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and runs its validate tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &inputError{message: "invalid request body", details: []string{err.Error()}}
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate request: %w", err)
		}
		return validationError(verrs)
	}
	return nil
}

func validationError(verrs validator.ValidationErrors) error {
	var missing, details []string
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			missing = append(missing, field)
			details = append(details, field+" is required")
		case "gt":
			details = append(details, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		case "gte":
			details = append(details, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "oneof":
			details = append(details, fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			details = append(details, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	message := "invalid request"
	if len(missing) > 0 {
		message = "missing required fields: " + strings.Join(missing, ", ")
	}
	return &inputError{message: message, details: details}
}

// =============================================================================
// QUERY AND PATH VALUES
// =============================================================================

func (h *Handler) periodFrom(r *http.Request) (core.Period, error) {
	q := r.URL.Query()
	return core.ParsePeriod(q.Get("from"), q.Get("to"), h.now())
}

// optionalPeriod is nil unless from or to is given.
func (h *Handler) optionalPeriod(r *http.Request) (*core.Period, error) {
	q := r.URL.Query()
	if q.Get("from") == "" && q.Get("to") == "" {
		return nil, nil
	}
	p, err := h.periodFrom(r)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, core.Invalid("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(core.DateLayout, value)
	if err != nil {
		return time.Time{}, core.Invalid("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

// parseInstant accepts RFC 3339 or a bare date. Empty returns def.
func parseInstant(field, value string, def time.Time) (time.Time, error) {
	if value == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(core.DateLayout, value); err == nil {
		return t, nil
	}
	return time.Time{}, core.Invalid("%s must be RFC 3339 or YYYY-MM-DD", field)
}
