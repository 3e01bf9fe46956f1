package quota

import (
	"errors"
	"fmt"
)

// DefaultLimit is the number of tickets a single VATIN may hold.
const DefaultLimit = 3

var ErrQuotaExceeded = errors.New("ticket quota exceeded")

// Enforcer decides whether one more ticket may be issued for a VATIN
// given how many it already holds.
type Enforcer struct {
	Limit int
}

func New() *Enforcer {
	return &Enforcer{Limit: DefaultLimit}
}

// Admit returns ErrQuotaExceeded when existing has already reached the limit.
func (e *Enforcer) Admit(existing int) error {
	if existing >= e.limit() {
		return fmt.Errorf("%d of %d tickets already issued: %w", existing, e.limit(), ErrQuotaExceeded)
	}
	return nil
}

// Remaining reports how many more tickets may be issued.
func (e *Enforcer) Remaining(existing int) int {
	if r := e.limit() - existing; r > 0 {
		return r
	}
	return 0
}

// Max returns the effective per-VATIN limit.
func (e *Enforcer) Max() int {
	return e.limit()
}

func (e *Enforcer) limit() int {
	if e == nil || e.Limit <= 0 {
		return DefaultLimit
	}
	return e.Limit
}
