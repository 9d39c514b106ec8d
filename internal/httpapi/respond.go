package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"hotelpos/backend/internal/store"
	"hotelpos/backend/internal/xid"
)

var (
	errMissingToken  = errors.New("missing bearer token")
	errForbiddenRole = errors.New("forbidden role")
	errRateLimited   = errors.New("too many attempts, try again shortly")
)

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// statusFor is the single place store and domain errors become HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int, err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case status == http.StatusBadRequest:
		return "validation_error"
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal_error"
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	a.fail(w, r, statusFor(err), err)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).
			Int("status", status).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", xid.RequestIDFrom(r.Context())).
			Msg("request failed")
		msg = "Internal server error"
		if a.development {
			msg = err.Error()
		}
	}
	writeJSON(w, status, errorBody{Message: msg, Error: errorCode(status, err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", store.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", store.ErrValidation, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: id must be a positive integer", store.ErrValidation)
	}
	return id, nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}
