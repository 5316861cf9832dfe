package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/notionsocial/internal/auth"
	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/store"
)

type contextKey string

const userContextKey contextKey = "user"

// LoginPath is where unauthenticated browser navigations are sent.
const LoginPath = "/auth"

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// authenticate resolves the session to a user and calls deny when there is
// none.
func authenticate(jwtSecret string, users store.UserStore, deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := hlog.FromRequest(r)

			token := auth.TokenFromRequest(r)
			if token == "" {
				deny(w, r)
				return
			}

			userID, err := auth.Verify(token, jwtSecret)
			if err != nil {
				log.Debug().Err(err).Msg("Rejected session token")
				deny(w, r)
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if errors.Is(err, store.ErrNotFound) {
				log.Debug().Str("user_id", userID).Msg("Session token for unknown user")
				deny(w, r)
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("Failed to load session user")
				writeError(w, r, http.StatusInternalServerError, "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// AuthMiddleware answers unauthenticated requests with a JSON 401.
func AuthMiddleware(jwtSecret string, users store.UserStore) func(http.Handler) http.Handler {
	return authenticate(jwtSecret, users, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
	})
}

// LoginRedirectMiddleware sends unauthenticated browsers to the login page.
func LoginRedirectMiddleware(jwtSecret string, users store.UserStore, publicURL string) func(http.Handler) http.Handler {
	return authenticate(jwtSecret, users, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, publicURL+LoginPath, http.StatusFound)
	})
}
