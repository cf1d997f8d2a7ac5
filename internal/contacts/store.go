package contacts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store defines contact persistence as the campaign engine needs it.
// Mutations are per-record and guarded so concurrent dispatch and
// reconciliation writers stay serialized on the fields they own.
type Store interface {
	Create(ctx context.Context, c *Contact) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contact, error)
	// ListPending returns every pending contact ordered oldest-created-first.
	ListPending(ctx context.Context) ([]Contact, error)
	// RecordAttempt bumps call_attempts by one and stamps last_called_at.
	RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
	// ApplyOutcome sets the contact status. A non-nil bookingRef is stored
	// only when no booking reference exists yet; an existing one is kept.
	ApplyOutcome(ctx context.Context, id uuid.UUID, status Status, bookingRef *string) error
	// ClaimFollowUp flips follow_up_sent false→true atomically and reports
	// whether this caller won the claim.
	ClaimFollowUp(ctx context.Context, id uuid.UUID) (bool, error)
	// ReleaseFollowUp undoes a claim whose send did not get confirmed.
	ReleaseFollowUp(ctx context.Context, id uuid.UUID) error
}

// MemoryStore is an in-memory Store for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts map[uuid.UUID]*Contact
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contacts: make(map[uuid.UUID]*Contact)}
}

// Create stores a new contact, filling id, status, and timestamps.
func (s *MemoryStore) Create(ctx context.Context, c *Contact) error {
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

	cp := *c
	s.mu.Lock()
	s.contacts[c.ID] = &cp
	s.mu.Unlock()
	return nil
}

// GetByID returns a copy of the contact.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListPending returns pending contacts ordered oldest-created-first.
func (s *MemoryStore) ListPending(ctx context.Context) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Contact
	for _, c := range s.contacts {
		if c.Status == StatusPending {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RecordAttempt bumps the attempt counter and stamps last_called_at.
func (s *MemoryStore) RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return ErrNotFound
	}
	c.CallAttempts++
	t := at
	c.LastCalledAt = &t
	c.UpdatedAt = at
	return nil
}

// ApplyOutcome sets the status and, when unset, the booking reference.
func (s *MemoryStore) ApplyOutcome(ctx context.Context, id uuid.UUID, status Status, bookingRef *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	if c.BookingReference == nil && bookingRef != nil {
		ref := *bookingRef
		c.BookingReference = &ref
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ClaimFollowUp flips follow_up_sent false→true, reporting whether it won.
func (s *MemoryStore) ClaimFollowUp(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return false, nil
	}
	if c.FollowUpSent {
		return false, nil
	}
	c.FollowUpSent = true
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ReleaseFollowUp undoes a claim after a failed send.
func (s *MemoryStore) ReleaseFollowUp(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return ErrNotFound
	}
	c.FollowUpSent = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}
