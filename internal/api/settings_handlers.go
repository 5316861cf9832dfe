package api

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/notionsocial/internal/store"
)

const maxNameLength = 100

// HandleGetUserSettings returns the current user's profile
func HandleGetUserSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]any{"user": UserFromContext(r.Context())})
	}
}

// UpdateUserSettingsRequest represents the request body for updating settings
type UpdateUserSettingsRequest struct {
	Name string `json:"name"`
}

// HandleUpdateUserSettings changes the user's display name
func HandleUpdateUserSettings(users store.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		var req UpdateUserSettingsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			writeError(w, r, http.StatusBadRequest, "Name must be between 1 and 100 characters")
			return
		}

		updated, err := users.UpdateUserName(r.Context(), user.ID, name)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to save user settings")
			writeError(w, r, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "user": updated})
	}
}
