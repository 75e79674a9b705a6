package instrument

import "fmt"

// Reason classifies instrument-layer failures. The interpreter's onError
// policy applies to operation failures; everything else is fatal.
type Reason string

const (
	// ReasonUnknownDriver means the declared driver name has no registered
	// transport.
	ReasonUnknownDriver Reason = "unknown_driver"
	// ReasonConnectFailed means the transport could not establish the
	// connection.
	ReasonConnectFailed Reason = "connect_failed"
	// ReasonAlreadyInUse means another in-flight run holds the same
	// physical instrument. Acquisition fails fast instead of queuing.
	ReasonAlreadyInUse Reason = "already_in_use"
	// ReasonOperationFailed means a connected instrument rejected or
	// failed an operation.
	ReasonOperationFailed Reason = "operation_failed"
	// ReasonRegistryClosed means a resolve was attempted after teardown.
	// Handles are only valid between connect and teardown, so this is a
	// fatal invariant violation.
	ReasonRegistryClosed Reason = "registry_closed"
)

// Error is the instrument-layer error type carrying the alias and failure
// classification alongside the underlying transport error.
type Error struct {
	Alias  string
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("instrument %q: %s: %v", e.Alias, e.Reason, e.Err)
	}
	return fmt.Sprintf("instrument %q: %s", e.Alias, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }
