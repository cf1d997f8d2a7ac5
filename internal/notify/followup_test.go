package notify

import (
	"strings"
	"testing"

	"github.com/kestrelhq/callflow/internal/contacts"
)

func TestFollowUpEmail_NotInterested(t *testing.T) {
	c := &contacts.Contact{
		CompanyName: "Harbor Dental",
		ContactName: "Dana Reyes",
		Email:       "dana@harbordental.example",
	}

	msg := FollowUpEmail(c, ReasonNotInterested, "Kestrel")

	if msg.To != "dana@harbordental.example" {
		t.Errorf("To: got %q", msg.To)
	}
	if msg.ToName != "Dana Reyes" {
		t.Errorf("ToName: got %q", msg.ToName)
	}
	if msg.Subject != "Thanks for your time" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Hi Dana,") {
		t.Errorf("body should greet by first name, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Harbor Dental") {
		t.Errorf("body should mention the company, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "The Kestrel Team") {
		t.Errorf("body should carry the brand sign-off, got %q", msg.Body)
	}
}

func TestFollowUpEmail_MaxAttempts(t *testing.T) {
	c := &contacts.Contact{
		ContactName: "Dana Reyes",
		Email:       "dana@harbordental.example",
	}

	msg := FollowUpEmail(c, ReasonMaxAttempts, "")

	if msg.Subject != "Sorry we missed you" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "couldn't catch you") {
		t.Errorf("body should explain the missed calls, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "The Team") {
		t.Errorf("body should fall back to a neutral sign-off, got %q", msg.Body)
	}
	// No company on record reads as "you".
	if !strings.Contains(msg.Body, "do for you") {
		t.Errorf("body should fall back to 'you' without a company, got %q", msg.Body)
	}
}

func TestFirstNameFallback(t *testing.T) {
	if got := firstName("  "); got != "there" {
		t.Errorf("firstName blank: got %q", got)
	}
	if got := firstName("Dana Reyes"); got != "Dana" {
		t.Errorf("firstName: got %q", got)
	}
}
