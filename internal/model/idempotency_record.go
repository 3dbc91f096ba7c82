package model

import (
	"time"
)

const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCommitted  = "committed"
)

// IdempotencyRecord is the durable ledger row for one idempotency key.
// The unique index on Key is what resolves the race between two concurrent
// first attempts: only one insert wins. No soft delete; expired rows are
// reaped outright.
type IdempotencyRecord struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Key         string    `json:"key" gorm:"not null;uniqueIndex"`
	Fingerprint string    `json:"fingerprint" gorm:"not null"`
	Status      string    `json:"status" gorm:"not null;default:'in_progress'"`
	ResultJSON  string    `json:"result_json" gorm:"type:text"`
	ExpiresAt   time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
