package models

import "time"

// AuthorizationState is the single-use CSRF token persisted between the
// start of an OAuth flow and its callback.
type AuthorizationState struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text"`
	SubjectKey string    `json:"subject_key" gorm:"not null;uniqueIndex:idx_authorization_states_subject_token"`
	Token      string    `json:"-" gorm:"not null;uniqueIndex:idx_authorization_states_subject_token"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for AuthorizationState
func (AuthorizationState) TableName() string {
	return "authorization_states"
}

// Expired reports whether the state can no longer be used at now.
func (s *AuthorizationState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ConnectionStatus is the lifecycle status of a linked external account
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)
