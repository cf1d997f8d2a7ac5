package notify

import (
	"fmt"
	"strings"

	"github.com/kestrelhq/callflow/internal/contacts"
)

// FollowUpReason says why a follow-up email goes out.
type FollowUpReason string

const (
	// ReasonNotInterested follows an explicit "not interested" call outcome.
	ReasonNotInterested FollowUpReason = "not_interested"
	// ReasonMaxAttempts follows the final unanswered call attempt.
	ReasonMaxAttempts FollowUpReason = "max_attempts"
)

// FollowUpEmail composes the message sent when the voice channel did not
// land, giving the contact a direct way to reach us. brandName appears in the
// sign-off; when empty a neutral sign-off is used.
func FollowUpEmail(c *contacts.Contact, reason FollowUpReason, brandName string) EmailMessage {
	signoff := "The Team"
	if brandName != "" {
		signoff = fmt.Sprintf("The %s Team", brandName)
	}

	var subject, body string
	switch reason {
	case ReasonNotInterested:
		subject = "Thanks for your time"
		body = fmt.Sprintf(
			"Hi %s,\n\n"+
				"Thanks for taking our call today. We understand the timing isn't right for %s. "+
				"If anything changes, just reply to this email and we'll pick things up from there.\n\n"+
				"Best,\n%s",
			firstName(c.ContactName), companyOrYou(c.CompanyName), signoff)
	default:
		subject = "Sorry we missed you"
		body = fmt.Sprintf(
			"Hi %s,\n\n"+
				"We tried to reach you a few times but couldn't catch you. "+
				"If you'd like to talk about what we can do for %s, reply to this email and we'll find a time that works.\n\n"+
				"Best,\n%s",
			firstName(c.ContactName), companyOrYou(c.CompanyName), signoff)
	}

	return EmailMessage{
		To:      c.Email,
		ToName:  c.ContactName,
		Subject: subject,
		Body:    body,
	}
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func companyOrYou(company string) string {
	if strings.TrimSpace(company) == "" {
		return "you"
	}
	return company
}
