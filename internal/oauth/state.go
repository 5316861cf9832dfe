package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateState generates a random state parameter for CSRF protection
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SubjectKey scopes a state to one user and one provider so that parallel
// flows for different providers never collide.
func SubjectKey(userID string, p Provider) string {
	return userID + "_" + string(p)
}
