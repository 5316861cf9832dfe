package models

import "time"

// User represents an authenticated dashboard user
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
