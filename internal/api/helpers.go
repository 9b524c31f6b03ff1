package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tokens.hh/internal/ledger"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Field     string `json:"field,omitempty"`
	Available *int64 `json:"available,omitempty"`
	Requested *int64 `json:"requested,omitempty"`
	Minimum   *int64 `json:"minimum,omitempty"`
	Status    string `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

// decodeJSON reads exactly one JSON value with no unknown fields. An empty
// body is accepted only when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after body")
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(q url.Values, key string) (*uuid.UUID, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, &ledger.ValidationError{Field: key, Msg: "must be a uuid"}
	}
	return &id, nil
}

func queryTime(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &ledger.ValidationError{Field: key, Msg: "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

func queryLimit(q url.Values, def int) (int, error) {
	v := q.Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &ledger.ValidationError{Field: "limit", Msg: "must be a positive integer"}
	}
	return n, nil
}

// writeEngineError maps an engine error to a response and returns the code
// it sent, for the event log.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) string {
	var (
		validation   *ledger.ValidationError
		insufficient *ledger.InsufficientBalanceError
		belowMinimum *ledger.BelowMinimumError
		transition   *ledger.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Field:   validation.Field,
			Message: validation.Msg,
		})
		return "invalid_request"
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     "insufficient_balance",
			Available: &insufficient.Available,
			Requested: &insufficient.Requested,
		})
		return "insufficient_balance"
	case errors.As(err, &belowMinimum):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     "below_minimum",
			Minimum:   &belowMinimum.Minimum,
			Requested: &belowMinimum.Requested,
		})
		return "below_minimum"
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "invalid_transition",
			Status:  string(transition.From),
			Message: transition.Error(),
		})
		return "invalid_transition"
	case errors.Is(err, ledger.ErrSubjectNotFound):
		writeError(w, http.StatusNotFound, "subject_not_found")
		return "subject_not_found"
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return "not_found"
	case errors.Is(err, ledger.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists")
		return "already_exists"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_cancelled")
		return "request_cancelled"
	}

	s.logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error")
	return "internal_error"
}
