package dialer

import (
	"time"

	"github.com/kestrelhq/callflow/internal/contacts"
)

// currentTimeFormat renders e.g. "Monday, January 2 at 3:04 PM MST".
const currentTimeFormat = "Monday, January 2 at 3:04 PM MST"

// ContactVariables builds the variable map the voice agent templates into
// its script. The current time is rendered in the contact's timezone so the
// agent can greet appropriately.
func ContactVariables(c *contacts.Contact, now time.Time) map[string]string {
	local := now.In(locationOf(c.Timezone))
	return map[string]string{
		"contact_name": c.ContactName,
		"company_name": c.CompanyName,
		"email":        c.Email,
		"phone":        c.Phone,
		"timezone":     c.Timezone,
		"current_time": local.Format(currentTimeFormat),
	}
}

// locationOf resolves a contact timezone string, falling back to UTC when the
// value is empty or invalid. A bad timezone must not block the call.
func locationOf(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
