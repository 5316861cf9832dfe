package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserSettings(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/settings", "", withSession(s.token))
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody(t, rec)["user"].(map[string]any)
	assert.Equal(t, s.user.ID, user["id"])
	assert.Equal(t, "Ana", user["name"])

	rec = s.do(http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateUserSettings(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/settings", `{"name":"  Ana Souza  "}`, withSession(s.token))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Ana Souza", body["user"].(map[string]any)["name"])

	stored, err := s.store.GetUser(context.Background(), s.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", stored.Name)
	assert.Equal(t, "ana@example.com", stored.Email)

	for name, payload := range map[string]string{
		"malformed": `{"name":`,
		"blank":     `{"name":"   "}`,
		"missing":   `{}`,
		"too long":  `{"name":"` + strings.Repeat("a", 101) + `"}`,
	} {
		rec := s.do(http.MethodPost, "/api/settings", payload, withSession(s.token))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	stored, err = s.store.GetUser(context.Background(), s.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", stored.Name)
}
