// Package settings supplies the automation policy record read by the
// dispatcher and reconciler. The record is owned by the operations surface;
// the engine only reads it, resolving it fresh at the start of every cycle
// and reconciliation instead of caching it process-wide.
package settings

import "time"

// AutomationSettings is the singleton policy record.
type AutomationSettings struct {
	AutomationEnabled  bool `json:"automation_enabled"`
	MaxCallsPerBatch   int  `json:"max_calls_per_batch"`
	RetryIntervalHours int  `json:"retry_interval_hours"`
	MaxAttempts        int  `json:"max_attempts"`
}

// Defaults returns the policy used when no record exists. Automation stays
// disabled until an operator explicitly turns it on; a fresh deployment must
// never start dialing on its own.
func Defaults() *AutomationSettings {
	return &AutomationSettings{
		AutomationEnabled:  false,
		MaxCallsPerBatch:   10,
		RetryIntervalHours: 24,
		MaxAttempts:        3,
	}
}

// RetryInterval returns the retry interval as a duration. Zero is legal and
// makes every pending contact with attempts remaining immediately eligible.
func (s *AutomationSettings) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalHours) * time.Hour
}
