package models

import (
	"time"

	"github.com/google/uuid"
)

type Parent struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PinCredential is the parent's PIN, stored as a bcrypt hash.
// Version is bumped on every rotation.
type PinCredential struct {
	ParentID  uuid.UUID `json:"parent_id"`
	PinHash   string    `json:"-"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
