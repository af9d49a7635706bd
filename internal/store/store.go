// Package store persists session snapshots so completed scans remain
// auditable after the workflow ends.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/syndy/cardscan/internal/model"
)

// IsNotFound reports whether an error from GetSession means the row does not
// exist, as opposed to a storage failure.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Step   model.Step             `json:"step,omitempty"`
	Status model.ProcessingStatus `json:"status,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// Store defines the persistence interface for scan sessions.
type Store interface {
	// SaveSession upserts the latest snapshot of a session.
	SaveSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	// DeleteOlderThan removes sessions last updated before the cutoff and
	// returns the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}
