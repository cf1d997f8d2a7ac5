package contacts

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a contact through the outbound campaign.
type Status string

const (
	StatusPending       Status = "pending"
	StatusCalling       Status = "calling"
	StatusNoAnswer      Status = "no_answer"
	StatusScheduled     Status = "scheduled"
	StatusNotInterested Status = "not_interested"
	StatusError         Status = "error"
)

// Contact represents a prospect tracked through the outbound-call campaign.
// Created by the lead-entry surface at status=pending with zero attempts;
// the dispatcher bumps call_attempts/last_called_at and the reconciler owns
// status, booking_reference, and follow_up_sent.
type Contact struct {
	ID               uuid.UUID  `json:"id"`
	CompanyName      string     `json:"company_name"`
	ContactName      string     `json:"contact_name"`
	Phone            string     `json:"phone"`
	Email            string     `json:"email"`
	Timezone         string     `json:"timezone,omitempty"`
	Status           Status     `json:"status"`
	CallAttempts     int        `json:"call_attempts"`
	LastCalledAt     *time.Time `json:"last_called_at,omitempty"`
	BookingReference *string    `json:"booking_reference,omitempty"`
	FollowUpSent     bool       `json:"follow_up_sent"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
