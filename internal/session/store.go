package session

import (
	"context"
	"errors"
	"time"

	"pritecards/internal/dedup"
	"pritecards/internal/question"
)

var ErrNotFound = errors.New("import session not found")

// Session is one in-flight import: the scan outcome under review plus the
// settings it was produced with.
type Session struct {
	ID           string                    `json:"id"`
	Creator      string                    `json:"creator"`
	Config       dedup.Config              `json:"config"`
	Stats        dedup.ScanStats           `json:"stats"`
	Workflow     dedup.Snapshot            `json:"workflow"`
	ImportErrors []question.ImportRowError `json:"import_errors,omitempty"`
	Committed    *question.SaveReport      `json:"committed,omitempty"`
	// CommitIDs pins the id of every record in the final batch once a commit
	// starts, so a retried commit writes the same rows.
	CommitIDs []string  `json:"commit_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps sessions between requests. Entries expire after the store's TTL,
// which is refreshed on every Save.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
