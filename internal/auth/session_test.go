package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSignVerify(t *testing.T) {
	token, err := Sign("user-1", testSecret, time.Minute)
	require.NoError(t, err)

	userID, err := Verify(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = Verify(token, "another-secret-another-secret!!")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejects(t *testing.T) {
	expired, err := Sign("user-1", testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = Verify(expired, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "user-1"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = Verify(noExpiry, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = Verify(hs512, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Sign("", testSecret, time.Minute)
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(r))
}
