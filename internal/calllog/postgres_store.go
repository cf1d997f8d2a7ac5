package calllog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists call logs in the relational database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes a store backed by pgx.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("calllog: db required")
	}
	return &PostgresStore{db: db}
}

// CreateDispatched inserts the dispatch-time record. The unique index on
// provider_call_id enforces at most one log per call.
func (s *PostgresStore) CreateDispatched(ctx context.Context, log *CallLog) error {
	if log.ProviderCallID == "" {
		return errors.New("calllog: provider call id required")
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO call_logs (id, contact_id, provider_call_id, initiation_status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ID, log.ContactID, log.ProviderCallID, log.InitiationStatus, []byte(log.Payload), log.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateCall
		}
		return fmt.Errorf("calllog: create dispatched: %w", err)
	}
	return nil
}

// GetByProviderCallID fetches the record for a provider call id.
func (s *PostgresStore) GetByProviderCallID(ctx context.Context, providerCallID string) (*CallLog, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, contact_id, provider_call_id, initiation_status, payload, report, report_attached_at, created_at
		FROM call_logs
		WHERE provider_call_id = $1`, providerCallID)

	var l CallLog
	var payload, report []byte
	err := row.Scan(&l.ID, &l.ContactID, &l.ProviderCallID, &l.InitiationStatus,
		&payload, &report, &l.ReportAttachedAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("calllog: get by provider call id: %w", err)
	}
	l.Payload = payload
	l.Report = report
	return &l, nil
}

// AttachReport stores the raw report once. The report IS NULL guard makes the
// update a compare-and-swap; a lost race means a duplicate delivery.
func (s *PostgresStore) AttachReport(ctx context.Context, providerCallID string, report []byte, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE call_logs SET report = $1, report_attached_at = $2
		WHERE provider_call_id = $3 AND report IS NULL`, report, at, providerCallID)
	if err != nil {
		return false, fmt.Errorf("calllog: attach report: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
