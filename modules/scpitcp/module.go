// Package scpitcp drives LAN instruments that speak SCPI over a raw TCP
// socket (the conventional port is 5025). The protocol is line-oriented
// text: one command per line, one reply line per query.
package scpitcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/atomsai/testflow/internal/ctxlog"
	"github.com/atomsai/testflow/internal/instrument"
)

// Default timeouts for socket instruments. Slow measurements (long
// integration times) are the norm, so the read timeout is generous.
const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 30 * time.Second
)

// Module implements the instrument.Module interface for this package.
type Module struct{}

// Register registers the driver with the engine.
func (m *Module) Register(d *instrument.Drivers) {
	d.Register("scpi.tcp", &transport{})
}

type transport struct{}

func (t *transport) Connect(ctx context.Context, decl instrument.Declaration) (instrument.Handle, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", decl.Address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", decl.Address, err)
	}
	ctxlog.FromContext(ctx).Debug("SCPI socket opened.", "alias", decl.Alias, "address", decl.Address)
	return &handle{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// handle serializes all traffic on one socket; SCPI instruments answer
// queries in request order and cannot interleave.
type handle struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

func (h *handle) Invoke(ctx context.Context, op string, args []cty.Value) (cty.Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	deadline := time.Now().Add(ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := h.conn.SetDeadline(deadline); err != nil {
		return cty.NilVal, fmt.Errorf("setting deadline: %w", err)
	}

	msg := instrument.FormatArgs(args)
	if _, err := fmt.Fprintf(h.conn, "%s\n", msg); err != nil {
		return cty.NilVal, fmt.Errorf("writing %q: %w", msg, err)
	}
	if op != instrument.OpQuery {
		return cty.NilVal, nil
	}

	line, err := h.reader.ReadString('\n')
	if err != nil {
		return cty.NilVal, fmt.Errorf("reading reply to %q: %w", msg, err)
	}
	return instrument.ParseResponse(line), nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.Close()
}
