// Package domain holds DTOs and contracts for saved searches
package domain

import (
	"context"
	"time"
)

// SavedSearch is the wire shape of one saved search
type SavedSearch struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SearchText string    `json:"search_text"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateInput is the create payload
type CreateInput struct {
	SearchText string `json:"search_text" validate:"required"`
}

// UpdateInput toggles a saved search
type UpdateInput struct {
	Enabled bool `json:"enabled"`
}

// ServicePort is consumed by handlers and the notification matcher setup
type ServicePort interface {
	ListForUser(ctx context.Context, userID string) ([]SavedSearch, error)
	Create(ctx context.Context, userID string, in CreateInput) (SavedSearch, error)
	SetEnabled(ctx context.Context, userID, id string, enabled bool) (SavedSearch, error)
	Delete(ctx context.Context, userID, id string) error
}
