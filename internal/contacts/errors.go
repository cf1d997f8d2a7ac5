package contacts

import "errors"

var (
	// ErrNotFound is returned when no contact matches the given id
	ErrNotFound = errors.New("contact not found")

	// ErrMissingPhone is returned when a contact is created without a phone number
	ErrMissingPhone = errors.New("phone is required")

	// ErrMissingName is returned when a contact is created without a contact name
	ErrMissingName = errors.New("contact name is required")
)
