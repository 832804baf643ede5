package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"charity/internal/core"
	"charity/internal/repository"
	"charity/internal/services"
	"charity/internal/store"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "component", "http", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), Message: message})
}

// writeServiceError maps service and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrInvalidToken):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrAccountExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, repository.ErrCampaignNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrMalformedRecord):
		slog.ErrorContext(r.Context(), "Malformed record", "component", "http", "error", err)
		writeError(w, http.StatusBadGateway, "stored data could not be read")
	default:
		slog.ErrorContext(r.Context(), "Request failed", "component", "http", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "the data store is unavailable, please try again")
	}
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.Invalid(fmt.Errorf("malformed request body: %w", err))
	}
	if dec.More() {
		return core.Invalid(errors.New("malformed request body: trailing data"))
	}
	return nil
}

// flexibleAmount accepts a JSON string or number and keeps its text.
type flexibleAmount string

func (a *flexibleAmount) UnmarshalJSON(b []byte) error {
	b = []byte(strings.TrimSpace(string(b)))
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = flexibleAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*a = flexibleAmount(n.String())
	return nil
}
