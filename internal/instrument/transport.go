// Package instrument is the boundary between the script engine and physical
// hardware. The engine talks to instruments only through the Transport and
// Handle interfaces; concrete drivers (simulator, SCPI over TCP, LXI HTTP,
// remote gateway) live under modules/ and register themselves the same way
// runner modules do.
package instrument

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Operation names every transport must understand. OpCommand writes with no
// response; OpQuery writes and reads back one measurement value.
const (
	OpCommand = "command"
	OpQuery   = "query"
)

// Declaration is the script-level binding of an alias to a driver and a
// transport-specific address.
type Declaration struct {
	Alias   string
	Driver  string
	Address string
}

// Handle is a live connection to one instrument. Handles are owned by the
// per-run Registry; the interpreter only borrows them and never manages
// connection lifetime.
type Handle interface {
	// Invoke performs one named operation with evaluated arguments and
	// returns the instrument's response, cty.NilVal when the operation
	// produces none.
	Invoke(ctx context.Context, op string, args []cty.Value) (cty.Value, error)
	// Close releases the underlying connection. Called exactly once, by
	// the Registry's teardown.
	Close() error
}

// Transport connects instruments for one driver family.
type Transport interface {
	Connect(ctx context.Context, decl Declaration) (Handle, error)
}

// Module is implemented by driver packages under modules/ so the hosting
// application can compile a fixed driver set into the binary.
type Module interface {
	Register(d *Drivers)
}
