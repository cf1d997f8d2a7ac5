package calllog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists call logs. Two backends exist: Postgres for deployments that
// keep everything in the relational database, DynamoDB for AWS-edge setups.
type Store interface {
	// CreateDispatched writes the dispatch-time record. A second write for
	// the same provider call id fails with ErrDuplicateCall.
	CreateDispatched(ctx context.Context, log *CallLog) error
	GetByProviderCallID(ctx context.Context, providerCallID string) (*CallLog, error)
	// AttachReport stores the raw report exactly once. It returns false when
	// a report is already attached, which callers treat as duplicate delivery.
	AttachReport(ctx context.Context, providerCallID string, report []byte, at time.Time) (bool, error)
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu           sync.RWMutex
	byProviderID map[string]*CallLog
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory call log store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byProviderID: make(map[string]*CallLog)}
}

// CreateDispatched stores the dispatch-time record.
func (s *MemoryStore) CreateDispatched(ctx context.Context, log *CallLog) error {
	if log.ProviderCallID == "" {
		return errors.New("calllog: provider call id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byProviderID[log.ProviderCallID]; exists {
		return ErrDuplicateCall
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	stored := *log
	s.byProviderID[log.ProviderCallID] = &stored
	return nil
}

// GetByProviderCallID fetches the record for a provider call id.
func (s *MemoryStore) GetByProviderCallID(ctx context.Context, providerCallID string) (*CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.byProviderID[providerCallID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *stored
	return &out, nil
}

// AttachReport stores the raw report once. Mirrors the Postgres store: a
// missing record and an already-attached report both report false.
func (s *MemoryStore) AttachReport(ctx context.Context, providerCallID string, report []byte, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byProviderID[providerCallID]
	if !ok {
		return false, nil
	}
	if stored.HasReport() {
		return false, nil
	}
	stored.Report = append([]byte(nil), report...)
	attachedAt := at
	stored.ReportAttachedAt = &attachedAt
	return true, nil
}
