package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/notion"
	"github.com/fuomag9/notionsocial/internal/store"
	"github.com/fuomag9/notionsocial/internal/tracking"
)

// Tracker is the database registration service behind the Notion handlers.
type Tracker interface {
	ConnectDatabase(ctx context.Context, userID string, req tracking.ConnectRequest) (*tracking.ConnectResult, error)
	AvailableDatabases(ctx context.Context, userID, workspaceID string) ([]tracking.AvailableDatabase, error)
	DatabaseProperties(ctx context.Context, userID, databaseID string) (*tracking.DatabaseDetails, error)
	UpdateConfig(ctx context.Context, userID, databaseID string, update tracking.ConfigUpdate) (*models.DatabaseConfig, error)
}

// writeTrackingError maps service errors to status codes.
func writeTrackingError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, tracking.ErrMissingFields):
		writeError(w, r, http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, tracking.ErrWorkspaceNotFound):
		writeError(w, r, http.StatusNotFound, "Workspace not found")
	case errors.Is(err, tracking.ErrDatabaseNotFound):
		writeError(w, r, http.StatusNotFound, "Database not found")
	case errors.Is(err, tracking.ErrAlreadyConnected):
		writeError(w, r, http.StatusConflict, "Database already connected")
	case errors.Is(err, tracking.ErrInvalidConfig):
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "Invalid configuration", Details: err.Error()})
	case errors.Is(err, notion.ErrSchemaReconciliation):
		writeJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{Error: "Failed to configure Notion database", Details: err.Error()})
	default:
		hlog.FromRequest(r).Error().Err(err).Msg(fallback)
		writeError(w, r, http.StatusInternalServerError, fallback)
	}
}

// WorkspaceSummary is a linked workspace as listed to the dashboard.
type WorkspaceSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      *string   `json:"icon"`
	CreatedAt time.Time `json:"createdAt"`
}

// HandleGetWorkspaces lists the user's linked workspaces, newest first
func HandleGetWorkspaces(workspaces store.WorkspaceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		list, err := workspaces.ListWorkspaces(r.Context(), user.ID)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to list workspaces")
			writeError(w, r, http.StatusInternalServerError, "Failed to fetch workspaces")
			return
		}

		out := make([]WorkspaceSummary, 0, len(list))
		for _, ws := range list {
			out = append(out, WorkspaceSummary{ID: ws.ID, Name: ws.Name, Icon: ws.Icon, CreatedAt: ws.CreatedAt})
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"workspaces": out})
	}
}

// HandleGetAvailableDatabases lists workspace databases not yet connected
func HandleGetAvailableDatabases(tracker Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		workspaceID := r.URL.Query().Get("workspaceId")
		if workspaceID == "" {
			writeError(w, r, http.StatusBadRequest, "Workspace ID is required")
			return
		}

		dbs, err := tracker.AvailableDatabases(r.Context(), user.ID, workspaceID)
		if err != nil {
			writeTrackingError(w, r, err, "Failed to fetch databases")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"databases": dbs})
	}
}

// HandleConnectDatabase registers a workspace database for publishing
func HandleConnectDatabase(tracker Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		var req tracking.ConnectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		res, err := tracker.ConnectDatabase(r.Context(), user.ID, req)
		if err != nil {
			writeTrackingError(w, r, err, "Failed to connect database")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"success":  true,
			"database": res.Database,
			"schema":   res.Schema,
		})
	}
}

// DatabaseSummary is a tracked database as listed to the dashboard.
type DatabaseSummary struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	NotionID  string            `json:"notionId"`
	Active    bool              `json:"active"`
	LastSync  *time.Time        `json:"lastSync"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Workspace *WorkspaceSummary `json:"workspace"`
	Stats     DatabaseStats     `json:"stats"`
}

// DatabaseStats summarizes the publishing state of a tracked database.
type DatabaseStats struct {
	// Posts counts published and scheduled posts.
	Posts      int64 `json:"posts"`
	Configured bool  `json:"configured"`
}

// HandleListDatabases lists the user's tracked databases, one page at a time
func HandleListDatabases(databases store.DatabaseStore, workspaces store.WorkspaceStore, posts store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		log := hlog.FromRequest(r)

		q, err := listQuery(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		page, err := databases.ListDatabases(r.Context(), user.ID, q)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, "Invalid cursor")
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to list databases")
			writeError(w, r, http.StatusInternalServerError, "Failed to fetch databases")
			return
		}

		wsList, err := workspaces.ListWorkspaces(r.Context(), user.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list workspaces")
			writeError(w, r, http.StatusInternalServerError, "Failed to fetch databases")
			return
		}
		byID := make(map[string]*WorkspaceSummary, len(wsList))
		for _, ws := range wsList {
			byID[ws.ID] = &WorkspaceSummary{ID: ws.ID, Name: ws.Name, Icon: ws.Icon, CreatedAt: ws.CreatedAt}
		}

		ids := make([]string, 0, len(page.Items))
		for _, db := range page.Items {
			ids = append(ids, db.ID)
		}
		counts, err := posts.CountActivePosts(r.Context(), user.ID, ids)
		if err != nil {
			log.Error().Err(err).Msg("Failed to count posts")
			writeError(w, r, http.StatusInternalServerError, "Failed to fetch databases")
			return
		}

		out := make([]DatabaseSummary, 0, len(page.Items))
		for _, db := range page.Items {
			out = append(out, DatabaseSummary{
				ID:        db.ID,
				Name:      db.Name,
				NotionID:  db.NotionID,
				Active:    db.Active,
				LastSync:  db.LastSync,
				CreatedAt: db.CreatedAt,
				UpdatedAt: db.UpdatedAt,
				Workspace: byID[db.WorkspaceID],
				Stats:     DatabaseStats{Posts: counts[db.ID], Configured: db.Config != nil},
			})
		}

		writeJSON(w, r, http.StatusOK, map[string]any{
			"databases":  out,
			"hasMore":    page.HasMore,
			"nextCursor": nextCursor(page.NextCursor),
		})
	}
}

// HandleDeleteDatabase stops tracking a database
func HandleDeleteDatabase(databases store.DatabaseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "Database ID is required")
			return
		}

		err := databases.DeleteDatabase(r.Context(), user.ID, id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Database not found")
			return
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to delete database")
			writeError(w, r, http.StatusInternalServerError, "Failed to delete database")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true})
	}
}

// HandleGetDatabaseConfig returns a tracked database with its live columns
func HandleGetDatabaseConfig(tracker Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		id := r.URL.Query().Get("databaseId")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "Database ID is required")
			return
		}

		details, err := tracker.DatabaseProperties(r.Context(), user.ID, id)
		if err != nil {
			writeTrackingError(w, r, err, "Failed to fetch database properties")
			return
		}
		writeJSON(w, r, http.StatusOK, details)
	}
}

// HandleUpdateDatabaseConfig changes the column mapping of a tracked database
func HandleUpdateDatabaseConfig(tracker Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "Database ID is required")
			return
		}

		var update tracking.ConfigUpdate
		if err := decodeJSON(w, r, &update); err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		cfg, err := tracker.UpdateConfig(r.Context(), user.ID, id, update)
		if err != nil {
			writeTrackingError(w, r, err, "Failed to save configuration")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": "Configuration saved", "data": cfg})
	}
}
