// Package sim provides an in-memory simulated instrument. It answers
// queries deterministically, which makes it the driver of choice for tests,
// dry runs and the CLI demo scripts.
package sim

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/atomsai/testflow/internal/ctxlog"
	"github.com/atomsai/testflow/internal/instrument"
)

// Module implements the instrument.Module interface for this package.
type Module struct{}

// Register registers the driver with the engine.
func (m *Module) Register(d *instrument.Drivers) {
	d.Register("sim", &transport{})
}

type transport struct{}

// Connect creates a fresh simulated instrument. A numeric address seeds the
// values it reports; anything else seeds zero.
func (t *transport) Connect(ctx context.Context, decl instrument.Declaration) (instrument.Handle, error) {
	base, err := strconv.ParseFloat(decl.Address, 64)
	if err != nil {
		base = 0
	}
	ctxlog.FromContext(ctx).Debug("Simulated instrument created.", "alias", decl.Alias, "base", base)
	return &handle{base: base}, nil
}

// handle is one simulated instrument. Queries report base + n/1000 for the
// n-th query, so repeated measurements drift predictably.
type handle struct {
	mu      sync.Mutex
	base    float64
	queries int
	history []string
	closed  bool
}

func (h *handle) Invoke(ctx context.Context, op string, args []cty.Value) (cty.Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return cty.NilVal, errors.New("simulated instrument already closed")
	}

	msg := instrument.FormatArgs(args)
	h.history = append(h.history, msg)

	if op != instrument.OpQuery {
		return cty.NilVal, nil
	}
	val := h.base + float64(h.queries)/1000
	h.queries++
	return cty.NumberFloatVal(val), nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
