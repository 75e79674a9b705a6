package instrument

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/atomsai/testflow/internal/ctxlog"
)

// Registry resolves script aliases to connected handles for one run.
// Connections are established lazily on first resolve, so a script path
// that never touches an instrument never connects it. Teardown closes every
// handle acquired during the run regardless of outcome.
type Registry struct {
	runID   string
	drivers *Drivers
	arbiter *Arbiter
	decls   map[string]Declaration

	mu      sync.Mutex
	handles map[string]Handle
	leased  map[string]Declaration
	closed  bool
}

// NewRegistry creates the per-run registry over the engine's driver table
// and arbiter, scoped to the script's declarations.
func NewRegistry(runID string, drivers *Drivers, arbiter *Arbiter, decls map[string]Declaration) *Registry {
	return &Registry{
		runID:   runID,
		drivers: drivers,
		arbiter: arbiter,
		decls:   decls,
		handles: map[string]Handle{},
		leased:  map[string]Declaration{},
	}
}

// Resolve returns the handle for alias, connecting it on first use. The
// parser guarantees every executed alias was declared, so a missing
// declaration here means the registry was built from the wrong script.
func (r *Registry) Resolve(ctx context.Context, alias string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, &Error{Alias: alias, Reason: ReasonRegistryClosed}
	}
	if h, connected := r.handles[alias]; connected {
		return h, nil
	}

	decl, declared := r.decls[alias]
	if !declared {
		return nil, &Error{Alias: alias, Reason: ReasonConnectFailed, Err: fmt.Errorf("alias not declared")}
	}
	transport, known := r.drivers.Lookup(decl.Driver)
	if !known {
		return nil, &Error{Alias: alias, Reason: ReasonUnknownDriver, Err: fmt.Errorf("driver %q", decl.Driver)}
	}

	if err := r.arbiter.acquire(decl, r.runID); err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Connecting instrument.", "alias", alias, "driver", decl.Driver, "address", decl.Address)
	h, err := transport.Connect(ctx, decl)
	if err != nil {
		r.arbiter.release(decl)
		var ierr *Error
		if errors.As(err, &ierr) {
			return nil, err
		}
		return nil, &Error{Alias: alias, Reason: ReasonConnectFailed, Err: err}
	}
	logger.Info("Instrument connected.", "alias", alias, "driver", decl.Driver)

	r.handles[alias] = h
	r.leased[alias] = decl
	return h, nil
}

// Teardown closes every handle acquired during the run and returns the
// leases. It runs on every exit path, is idempotent, and keeps going past
// individual close failures; the joined error is reported but never blocks
// the remaining releases.
func (r *Registry) Teardown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	logger := ctxlog.FromContext(ctx)
	aliases := make([]string, 0, len(r.handles))
	for alias := range r.handles {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	var errs []error
	for _, alias := range aliases {
		if err := r.handles[alias].Close(); err != nil {
			logger.Warn("Instrument close failed.", "alias", alias, "error", err)
			errs = append(errs, fmt.Errorf("closing %q: %w", alias, err))
		} else {
			logger.Debug("Instrument closed.", "alias", alias)
		}
		r.arbiter.release(r.leased[alias])
		delete(r.handles, alias)
		delete(r.leased, alias)
	}
	return errors.Join(errs...)
}

// Connected returns the aliases with live handles, sorted. Used by tests
// and progress logging.
func (r *Registry) Connected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	aliases := make([]string, 0, len(r.handles))
	for alias := range r.handles {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}
