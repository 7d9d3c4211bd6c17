package generation

import (
	"errors"
	"fmt"
)

// Provider outcome kinds. Callers may retry these; the raw provider error is
// logged, never returned to clients.
var (
	ErrProviderUnavailable = errors.New("generation provider unavailable")
	ErrProviderBusy        = errors.New("generation provider busy")
	ErrProviderEmptyResult = errors.New("generation provider returned no text")
)

// InputError rejects a request before any quota or provider work.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid input: " + e.Reason
}

// QuotaExceededError carries the numbers clients show next to the upgrade prompt.
type QuotaExceededError struct {
	Used  int
	Limit int
	Plan  string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded: %d/%d on plan %s", e.Used, e.Limit, e.Plan)
}
