package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/notionsocial/internal/store"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// listQuery reads cursor, limit and search from the query string.
func listQuery(r *http.Request) (store.ListQuery, error) {
	q := r.URL.Query()
	lq := store.ListQuery{
		Cursor: q.Get("cursor"),
		Search: q.Get("search"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return lq, errors.New("limit must be a positive integer")
		}
		lq.Limit = limit
	}
	return lq.Normalize(), nil
}

// nextCursor renders an empty cursor as JSON null.
func nextCursor(c string) *string {
	if c == "" {
		return nil
	}
	return &c
}
