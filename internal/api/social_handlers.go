package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/store"
)

// AccountSummary is a linked social account as listed to the dashboard.
type AccountSummary struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Platform  string                  `json:"platform"`
	AccountID string                  `json:"accountId"`
	Status    models.ConnectionStatus `json:"status"`
	LastSync  time.Time               `json:"lastSync"`
}

// HandleListAccounts lists the user's social accounts, most recently synced first
func HandleListAccounts(accounts store.AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		q, err := listQuery(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		switch platform := r.URL.Query().Get("platform"); {
		case platform == "" || platform == "all":
		case models.IsSocialPlatform(platform):
			q.Platform = platform
		default:
			writeError(w, r, http.StatusBadRequest, "Invalid platform")
			return
		}

		page, err := accounts.ListAccounts(r.Context(), user.ID, q)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, "Invalid cursor")
			return
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to list social accounts")
			writeError(w, r, http.StatusInternalServerError, "Failed to fetch accounts")
			return
		}

		out := make([]AccountSummary, 0, len(page.Items))
		for _, a := range page.Items {
			out = append(out, AccountSummary{
				ID:        a.ID,
				Name:      a.Name,
				Platform:  a.Platform,
				AccountID: a.AccountID,
				Status:    a.Status,
				LastSync:  a.LastSync,
			})
		}

		writeJSON(w, r, http.StatusOK, map[string]any{
			"accounts":   out,
			"hasMore":    page.HasMore,
			"nextCursor": nextCursor(page.NextCursor),
		})
	}
}

// HandleDeleteAccount unlinks a social account
func HandleDeleteAccount(accounts store.AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "Account ID is required")
			return
		}

		err := accounts.DeleteAccount(r.Context(), user.ID, id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Account not found")
			return
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to delete social account")
			writeError(w, r, http.StatusInternalServerError, "Failed to delete account")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true})
	}
}
