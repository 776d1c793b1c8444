package quota

import (
	"time"
)

// State is a read-only snapshot of one provider's quota counters.
type State struct {
	Provider string `json:"provider"`

	// Used is the number of calls counted in the current window.
	Used int `json:"used"`

	// Remaining is the budget left in the current window. Meaningless
	// when Unlimited is true.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window rolls over.
	ResetAt time.Time `json:"reset_at"`

	// Unlimited is true for providers without a window budget.
	Unlimited bool `json:"unlimited"`
}

// Exhausted reports whether the provider has no budget left.
func (s State) Exhausted() bool {
	return !s.Unlimited && s.Remaining <= 0
}

// TimeUntilReset returns the duration until the window rolls over, or
// zero if it already has (or the provider is unlimited).
func (s State) TimeUntilReset() time.Duration {
	if s.Unlimited {
		return 0
	}
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}
