// Package translation persists one record per translation attempt for the
// user's history. The streaming loop creates a record at start and updates
// it exactly once at finalization; it never reads the record back
// mid-session.
package translation

import (
	"context"
	"time"
)

// Directions.
const (
	DirectionToSign   = "to_sign"
	DirectionFromSign = "from_sign"
)

// Statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Processing modes.
const (
	ModeBatch     = "batch"
	ModeStreaming = "streaming"
)

// Record is a persisted translation attempt.
type Record struct {
	ID             int64
	UserID         string
	Direction      string
	InputType      string
	OutputType     string
	Status         string
	InputText      string
	OutputText     string
	OutputMediaURL string
	SourceLanguage string
	ProcessingMode string
	CreatedAt      time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
	ErrorMessage   string
}

// Store persists translation records.
type Store interface {
	Create(ctx context.Context, r *Record) (int64, error)
	Complete(ctx context.Context, id int64, outputText, mediaURL string) error
	Fail(ctx context.Context, id int64, errMsg string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
}
