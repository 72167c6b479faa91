// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed HTTP
// request, keyed by (principal_id, scope, key). It enables safe retries for
// POST operations (e.g., proposing a transfer) by letting handlers return the
// originally produced response without re-executing side effects.
//
// Scope is the matched route template (e.g., "/api/v1/transfers") so the same
// client key can be reused safely across unrelated endpoints.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	PrincipalID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_principal_scope_key,priority:1"`
	Scope       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_principal_scope_key,priority:2"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_principal_scope_key,priority:3"`
	ResourceID  string    `gorm:"type:TEXT NOT NULL"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
