package testutil

import (
	"context"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/atomsai/testflow/internal/instrument"
)

// FakeTransport is a scriptable in-process transport for tests. It records
// every connect, invocation and close, and lets tests inject failures.
type FakeTransport struct {
	mu sync.Mutex

	// ConnectErr, when set, fails every connect attempt.
	ConnectErr error
	// InvokeFn overrides the response logic. The default answers every
	// query with 42.
	InvokeFn func(op string, args []cty.Value) (cty.Value, error)

	connects    int
	closes      int
	invocations []string
}

// FakeModule registers a FakeTransport under a driver name.
type FakeModule struct {
	Name      string
	Transport *FakeTransport
}

// Register registers the fake driver with the engine.
func (m *FakeModule) Register(d *instrument.Drivers) {
	d.Register(m.Name, m.Transport)
}

// NewFakeModule wires a fresh FakeTransport under name, defaulting to "fake".
func NewFakeModule(name string) (*FakeModule, *FakeTransport) {
	if name == "" {
		name = "fake"
	}
	tr := &FakeTransport{}
	return &FakeModule{Name: name, Transport: tr}, tr
}

// Connect implements instrument.Transport.
func (f *FakeTransport) Connect(ctx context.Context, decl instrument.Declaration) (instrument.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	f.connects++
	return &fakeHandle{transport: f}, nil
}

// Connects returns how many handles were opened.
func (f *FakeTransport) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Closes returns how many handles were closed.
func (f *FakeTransport) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Invocations returns the formatted messages sent so far, in order.
func (f *FakeTransport) Invocations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.invocations))
	copy(out, f.invocations)
	return out
}

type fakeHandle struct {
	transport *FakeTransport
}

func (h *fakeHandle) Invoke(ctx context.Context, op string, args []cty.Value) (cty.Value, error) {
	f := h.transport
	f.mu.Lock()
	f.invocations = append(f.invocations, instrument.FormatArgs(args))
	fn := f.InvokeFn
	f.mu.Unlock()

	if fn != nil {
		return fn(op, args)
	}
	if op == instrument.OpQuery {
		return cty.NumberIntVal(42), nil
	}
	return cty.NilVal, nil
}

func (h *fakeHandle) Close() error {
	f := h.transport
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}
