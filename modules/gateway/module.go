// Package gateway drives instruments reached through a remote instrument
// gateway speaking socket.io. The gateway bridges to whatever physical bus
// it fronts; the engine only sees an "invoke"/"reply" event pair.
//
// The declared address is the gateway URL; an optional fragment selects the
// remote instrument, e.g. "http://lab-gw:8080/bus#GPIB0::12".
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/atomsai/testflow/internal/ctxlog"
	"github.com/atomsai/testflow/internal/instrument"
)

const (
	connectTimeout = 10 * time.Second
	invokeTimeout  = 30 * time.Second

	invokeEvent = "invoke"
	replyEvent  = "reply"
)

// Module implements the instrument.Module interface for this package.
type Module struct{}

// Register registers the driver with the engine.
func (m *Module) Register(d *instrument.Drivers) {
	d.Register("gateway", &transport{})
}

type transport struct{}

// opResult passes event payloads through the reply channel.
type opResult struct {
	value cty.Value
	err   error
}

func (t *transport) Connect(ctx context.Context, decl instrument.Declaration) (instrument.Handle, error) {
	logger := ctxlog.FromContext(ctx).With("driver", "gateway", "alias", decl.Alias)

	parsedURL, err := url.Parse(decl.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway URL: %w", err)
	}
	target := parsedURL.Fragment

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	var isConnected atomic.Bool
	connected := make(chan error, 1)

	io.On(types.EventName("connect"), func(...any) {
		if isConnected.CompareAndSwap(false, true) {
			logger.Info("Gateway connected.", "url", baseURL, "sid", io.Id())
			connected <- nil
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if cerr, ok := errs[0].(error); ok {
				select {
				case connected <- cerr:
				default:
				}
				return
			}
		}
		select {
		case connected <- fmt.Errorf("gateway connection refused"):
		default:
		}
	})

	io.Connect()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	select {
	case <-connectCtx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("timed out waiting for gateway connection to %s", baseURL)
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("gateway connection failed: %w", err)
		}
	}

	return &handle{io: io, target: target, logger: logger}, nil
}

type handle struct {
	io     *socket.Socket
	target string
	logger interface {
		Debug(msg string, args ...any)
	}
}

func (h *handle) Invoke(ctx context.Context, op string, args []cty.Value) (cty.Value, error) {
	msg := instrument.FormatArgs(args)
	payload := map[string]any{
		"target":  h.target,
		"op":      op,
		"message": msg,
	}
	h.logger.Debug("Emitting invoke.", "target", h.target, "op", op, "message", msg)

	if op != instrument.OpQuery {
		// Writes are fire-and-forget; the gateway orders them per socket.
		h.io.Emit(invokeEvent, payload)
		return cty.NilVal, nil
	}

	done := make(chan opResult, 1)
	h.io.Once(types.EventName(replyEvent), func(data ...any) {
		if len(data) == 0 {
			done <- opResult{value: cty.NilVal}
			return
		}
		switch v := data[0].(type) {
		case float64:
			done <- opResult{value: cty.NumberFloatVal(v)}
		case string:
			done <- opResult{value: instrument.ParseResponse(v)}
		case map[string]any:
			if errMsg, failed := v["error"].(string); failed {
				done <- opResult{err: fmt.Errorf("gateway: %s", errMsg)}
				return
			}
			done <- opResult{value: instrument.ParseResponse(fmt.Sprint(v["value"]))}
		default:
			done <- opResult{value: instrument.ParseResponse(fmt.Sprint(v))}
		}
	})

	h.io.Emit(invokeEvent, payload)

	opCtx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()
	select {
	case <-opCtx.Done():
		return cty.NilVal, fmt.Errorf("timed out waiting for reply to %q", msg)
	case res := <-done:
		return res.value, res.err
	}
}

func (h *handle) Close() error {
	h.io.Disconnect()
	return nil
}
