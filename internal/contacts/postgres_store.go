package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists contacts in the relational database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes a store backed by pgx.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("contacts: db required")
	}
	return &PostgresStore{db: db}
}

// Create inserts a new contact row, filling id, status, and timestamps.
func (s *PostgresStore) Create(ctx context.Context, c *Contact) error {
	if strings.TrimSpace(c.ContactName) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(c.Phone) == "" {
		return ErrMissingPhone
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusPending
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO contacts (id, company_name, contact_name, phone, email, timezone, status, call_attempts, follow_up_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.CompanyName, c.ContactName, c.Phone, c.Email, c.Timezone,
		string(c.Status), c.CallAttempts, c.FollowUpSent, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("contacts: create: %w", err)
	}
	return nil
}

// GetByID fetches a single contact.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, company_name, contact_name, phone, email, timezone, status, call_attempts, last_called_at, booking_reference, follow_up_sent, created_at, updated_at
		FROM contacts
		WHERE id = $1`, id)

	var c Contact
	var status string
	err := row.Scan(
		&c.ID, &c.CompanyName, &c.ContactName, &c.Phone, &c.Email, &c.Timezone,
		&status, &c.CallAttempts, &c.LastCalledAt, &c.BookingReference,
		&c.FollowUpSent, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("contacts: get by id: %w", err)
	}
	c.Status = Status(status)
	return &c, nil
}

// ListPending returns pending contacts ordered oldest-created-first.
func (s *PostgresStore) ListPending(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, company_name, contact_name, phone, email, timezone, status, call_attempts, last_called_at, booking_reference, follow_up_sent, created_at, updated_at
		FROM contacts
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("contacts: list pending: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

// RecordAttempt bumps call_attempts and stamps last_called_at. The attempt is
// recorded unconditionally once the gateway accepted the call, whatever the
// eventual outcome turns out to be.
func (s *PostgresStore) RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE contacts SET call_attempts = call_attempts + 1, last_called_at = $1, updated_at = $1
		WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("contacts: record attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyOutcome sets the status. A non-nil bookingRef lands only when the row
// has no booking reference yet, which keeps replays from clobbering one.
func (s *PostgresStore) ApplyOutcome(ctx context.Context, id uuid.UUID, status Status, bookingRef *string) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE contacts SET status = $1, booking_reference = COALESCE(booking_reference, $2), updated_at = $3
		WHERE id = $4`, string(status), bookingRef, now, id)
	if err != nil {
		return fmt.Errorf("contacts: apply outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimFollowUp flips follow_up_sent false→true. The WHERE guard makes the
// flip a compare-and-swap: at most one concurrent caller sees true.
func (s *PostgresStore) ClaimFollowUp(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE contacts SET follow_up_sent = TRUE, updated_at = $1
		WHERE id = $2 AND follow_up_sent = FALSE`, now, id)
	if err != nil {
		return false, fmt.Errorf("contacts: claim follow-up: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseFollowUp undoes a claim whose send was not confirmed.
func (s *PostgresStore) ReleaseFollowUp(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE contacts SET follow_up_sent = FALSE, updated_at = $1
		WHERE id = $2 AND follow_up_sent = TRUE`, now, id)
	if err != nil {
		return fmt.Errorf("contacts: release follow-up: %w", err)
	}
	return nil
}

func scanContacts(rows pgx.Rows) ([]Contact, error) {
	var result []Contact
	for rows.Next() {
		var c Contact
		var status string
		err := rows.Scan(
			&c.ID, &c.CompanyName, &c.ContactName, &c.Phone, &c.Email, &c.Timezone,
			&status, &c.CallAttempts, &c.LastCalledAt, &c.BookingReference,
			&c.FollowUpSent, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("contacts: scan contact: %w", err)
		}
		c.Status = Status(status)
		result = append(result, c)
	}
	return result, rows.Err()
}
