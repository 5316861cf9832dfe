package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/notionsocial/internal/config"
	"github.com/fuomag9/notionsocial/internal/store"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config  *config.Config
	Store   store.Store
	Flow    Flow
	Tracker Tracker
	// WebSocket serves /ws; the route is left out when nil.
	WebSocket http.HandlerFunc
	// AuthLimiter throttles the OAuth entry points; nil disables it.
	AuthLimiter *RateLimiter
	Log         zerolog.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	publicURL := cfg.PublicURL()

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(d.Log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.AccessHandler(AccessLog))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireJSON := AuthMiddleware(cfg.JWTSecret, d.Store)
	requireLogin := LoginRedirectMiddleware(cfg.JWTSecret, d.Store, publicURL)
	throttle := func(next http.Handler) http.Handler { return next }
	if d.AuthLimiter != nil {
		throttle = RateLimitMiddleware(d.AuthLimiter)
	}

	r.Route("/api", func(r chi.Router) {
		// OAuth entry points and callbacks are browser navigations
		r.Group(func(r chi.Router) {
			r.Use(throttle)

			r.With(requireLogin).Get("/notion/auth", HandleNotionAuth(d.Flow, publicURL))
			r.With(requireLogin).Get("/notion/auth/callback", HandleNotionCallback(d.Flow, publicURL))
			r.With(requireJSON).Get("/social/auth", HandleSocialAuth(d.Flow, publicURL))
			r.With(requireLogin).Get("/social/auth/{platform}/callback", HandleSocialCallback(d.Flow, publicURL))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireJSON)

			r.Get("/notion/workspaces", HandleGetWorkspaces(d.Store))
			r.Get("/notion/workspace/databases", HandleGetAvailableDatabases(d.Tracker))
			r.Post("/notion/workspace/databases", HandleConnectDatabase(d.Tracker))
			r.Get("/notion/databases", HandleListDatabases(d.Store, d.Store, d.Store))
			r.Delete("/notion/databases", HandleDeleteDatabase(d.Store))
			r.Get("/notion/databases/configure", HandleGetDatabaseConfig(d.Tracker))
			r.Post("/notion/databases/configure", HandleUpdateDatabaseConfig(d.Tracker))

			r.Get("/social/accounts", HandleListAccounts(d.Store))
			r.Delete("/social/accounts", HandleDeleteAccount(d.Store))

			r.Get("/posts", HandleListPosts(d.Store))
			r.Delete("/posts", HandleDeletePost(d.Store))
			r.Get("/posts/databases", HandleListPostDatabases(d.Store))
			r.Get("/posts/{id}", HandleGetPost(d.Store))

			r.Get("/settings", HandleGetUserSettings())
			r.Post("/settings", HandleUpdateUserSettings(d.Store))
		})
	})

	// WebSocket endpoint
	if d.WebSocket != nil {
		r.Get("/ws", d.WebSocket)
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
