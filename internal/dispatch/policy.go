package dispatch

import (
	"time"

	"github.com/kestrelhq/callflow/internal/contacts"
	"github.com/kestrelhq/callflow/internal/settings"
)

// Eligible reports whether a contact may be dialed now. A contact qualifies
// when it is still pending, has attempts remaining, and its last call is
// either absent or older than the retry interval. Pure; callers must
// re-evaluate each cycle because now advances.
func Eligible(c *contacts.Contact, s *settings.AutomationSettings, now time.Time) bool {
	if c.Status != contacts.StatusPending {
		return false
	}
	if c.CallAttempts >= s.MaxAttempts {
		return false
	}
	if c.LastCalledAt == nil {
		return true
	}
	return now.Sub(*c.LastCalledAt) >= s.RetryInterval()
}

// SelectBatch filters the candidate list down to eligible contacts, keeping
// the caller's order (oldest created first), capped at max_calls_per_batch.
// A non-positive batch size selects nothing; that is a valid configuration.
func SelectBatch(candidates []contacts.Contact, s *settings.AutomationSettings, now time.Time) []contacts.Contact {
	if s.MaxCallsPerBatch <= 0 {
		return nil
	}
	batch := make([]contacts.Contact, 0, s.MaxCallsPerBatch)
	for i := range candidates {
		if !Eligible(&candidates[i], s, now) {
			continue
		}
		batch = append(batch, candidates[i])
		if len(batch) == s.MaxCallsPerBatch {
			break
		}
	}
	return batch
}
