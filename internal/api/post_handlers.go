package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/store"
)

// DatabaseRef names the database a post came from.
type DatabaseRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PostSummary is a post as shown to the dashboard.
type PostSummary struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	ImageURL     *string           `json:"imageUrl"`
	Status       models.PostStatus `json:"status"`
	Platform     string            `json:"platform,omitempty"`
	PublishedAt  *time.Time        `json:"publishedAt"`
	ScheduledFor *time.Time        `json:"scheduledFor"`
	CreatedAt    time.Time         `json:"createdAt"`
	Database     *DatabaseRef      `json:"database"`
	Error        string            `json:"error,omitempty"`
}

func summarizePost(p *models.Post) PostSummary {
	out := PostSummary{
		ID:           p.ID,
		Title:        p.Title,
		Content:      p.Content,
		ImageURL:     p.ImageURL,
		Status:       p.Status,
		Platform:     p.Platform(),
		PublishedAt:  p.PublishedAt,
		ScheduledFor: p.ScheduledFor,
		CreatedAt:    p.CreatedAt,
		Error:        p.Error,
	}
	if p.Database != nil {
		out.Database = &DatabaseRef{ID: p.Database.ID, Name: p.Database.Name}
	}
	return out
}

// Pagination describes a numbered page of results.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
}

func positiveInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

// postQuery reads the post list filters from the query string.
func postQuery(r *http.Request) (store.PostQuery, error) {
	q := r.URL.Query()
	pq := store.PostQuery{
		Search:     q.Get("search"),
		Platform:   q.Get("platform"),
		DatabaseID: q.Get("database"),
		Sort:       q.Get("sort"),
	}

	var err error
	if pq.Page, err = positiveInt(q.Get("page"), "page"); err != nil {
		return pq, err
	}
	if pq.Limit, err = positiveInt(q.Get("limit"), "limit"); err != nil {
		return pq, err
	}

	if status := q.Get("status"); status != "" {
		if !models.IsPostStatus(status) {
			return pq, fmt.Errorf("unknown status %q", status)
		}
		pq.Status = models.PostStatus(status)
	}
	if pq.Platform != "" && !models.IsSocialPlatform(pq.Platform) {
		return pq, fmt.Errorf("unknown platform %q", pq.Platform)
	}
	if _, ok := store.PostSortColumns[pq.Sort]; pq.Sort != "" && !ok {
		return pq, fmt.Errorf("unknown sort field %q", pq.Sort)
	}
	switch q.Get("direction") {
	case "", "desc":
	case "asc":
		pq.Ascending = true
	default:
		return pq, errors.New("direction must be asc or desc")
	}
	return pq.Normalize(), nil
}

// HandleListPosts lists the user's posts, one numbered page at a time
func HandleListPosts(posts store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		q, err := postQuery(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		list, err := posts.ListPosts(r.Context(), user.ID, q)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to list posts")
			writeError(w, r, http.StatusInternalServerError, "Failed to fetch posts")
			return
		}

		out := make([]PostSummary, 0, len(list.Items))
		for i := range list.Items {
			out = append(out, summarizePost(&list.Items[i]))
		}
		totalPages := (list.Total + int64(q.Limit) - 1) / int64(q.Limit)
		writeJSON(w, r, http.StatusOK, map[string]any{
			"posts": out,
			"pagination": Pagination{
				Page:       q.Page,
				Limit:      q.Limit,
				Total:      list.Total,
				TotalPages: totalPages,
				HasMore:    int64(q.Page) < totalPages,
			},
		})
	}
}

// HandleGetPost returns one of the user's posts
func HandleGetPost(posts store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		post, err := posts.GetPost(r.Context(), user.ID, chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Post not found")
			return
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to fetch post")
			writeError(w, r, http.StatusInternalServerError, "Failed to fetch post")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"post": summarizePost(post)})
	}
}

// HandleDeletePost removes one of the user's posts
func HandleDeletePost(posts store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "Post ID is required")
			return
		}

		err := posts.DeletePost(r.Context(), user.ID, id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Post not found")
			return
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to delete post")
			writeError(w, r, http.StatusInternalServerError, "Failed to delete post")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true})
	}
}

// HandleListPostDatabases lists the active databases posts can be filtered by
func HandleListPostDatabases(databases store.DatabaseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		list, err := databases.ListActiveDatabases(r.Context(), user.ID)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to list active databases")
			writeError(w, r, http.StatusInternalServerError, "Failed to fetch Notion databases")
			return
		}

		out := make([]DatabaseRef, 0, len(list))
		for _, db := range list {
			out = append(out, DatabaseRef{ID: db.ID, Name: db.Name})
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"databases": out})
	}
}
