// Package history persists one record per dispatch cycle so operators can
// review what the engine did and when.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const defaultListLimit = 50

// CycleRecord is the stored outcome of one dispatch cycle.
type CycleRecord struct {
	ID               string    `json:"id"`
	TriggeredBy      string    `json:"triggered_by"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Total            int       `json:"total"`
	Succeeded        int       `json:"succeeded"`
	Failed           int       `json:"failed"`
	FailedContactIDs []string  `json:"failed_contact_ids"`
}

// Store writes and reads dispatch cycle records.
type Store struct {
	db *sql.DB
}

// NewStore creates a cycle history store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("history: db is required")
	}
	return &Store{db: db}
}

// RecordCycle appends one cycle record. Missing id/timestamps are filled in.
func (s *Store) RecordCycle(ctx context.Context, rec CycleRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.TriggeredBy == "" {
		rec.TriggeredBy = "schedule"
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO dispatch_cycles (
			id, triggered_by, started_at, finished_at,
			total, succeeded, failed, failed_contact_ids
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.TriggeredBy,
		rec.StartedAt,
		rec.FinishedAt,
		rec.Total,
		rec.Succeeded,
		rec.Failed,
		pq.Array(rec.FailedContactIDs),
	)
	if err != nil {
		return fmt.Errorf("history: record cycle: %w", err)
	}
	return nil
}

// ListRecent returns the most recent cycles, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, triggered_by, started_at, finished_at,
		       total, succeeded, failed, failed_contact_ids
		FROM dispatch_cycles
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list cycles: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		if err := rows.Scan(
			&rec.ID, &rec.TriggeredBy, &rec.StartedAt, &rec.FinishedAt,
			&rec.Total, &rec.Succeeded, &rec.Failed, pq.Array(&rec.FailedContactIDs),
		); err != nil {
			return nil, fmt.Errorf("history: scan cycle: %w", err)
		}
		if rec.FailedContactIDs == nil {
			rec.FailedContactIDs = []string{}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate cycles: %w", err)
	}
	return records, nil
}
