package instrument

import (
	"fmt"
	"sync"
)

// Arbiter serializes ownership of physical instruments across concurrent
// runs. Hardware state mutation ordering cannot be safely interleaved
// without locking support from the transport layer, so a second acquisition
// of a held instrument fails fast instead of queuing.
type Arbiter struct {
	mu   sync.Mutex
	held map[string]string // driver/address -> run ID
}

// NewArbiter creates an empty arbiter. One arbiter serves all runs hosted
// by an engine.
func NewArbiter() *Arbiter {
	return &Arbiter{held: map[string]string{}}
}

func leaseKey(decl Declaration) string {
	return decl.Driver + "/" + decl.Address
}

// acquire leases the instrument identified by decl for runID.
func (a *Arbiter) acquire(decl Declaration, runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := leaseKey(decl)
	if holder, taken := a.held[key]; taken {
		return &Error{
			Alias:  decl.Alias,
			Reason: ReasonAlreadyInUse,
			Err:    fmt.Errorf("%s held by run %s", key, holder),
		}
	}
	a.held[key] = runID
	return nil
}

// release returns the lease. Releasing an unheld lease is a no-op.
func (a *Arbiter) release(decl Declaration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.held, leaseKey(decl))
}
