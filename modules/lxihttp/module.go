// Package lxihttp drives LXI-class instruments that expose an HTTP control
// endpoint: commands and queries are POSTed as plain text to /api/scpi and
// the reply body carries the measurement.
package lxihttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/atomsai/testflow/internal/ctxlog"
	"github.com/atomsai/testflow/internal/instrument"
)

// Module implements the instrument.Module interface for this package.
type Module struct{}

// Register registers the driver with the engine.
func (m *Module) Register(d *instrument.Drivers) {
	d.Register("lxi.http", &transport{})
}

type transport struct{}

func (t *transport) Connect(ctx context.Context, decl instrument.Declaration) (instrument.Handle, error) {
	base := decl.Address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        4,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	h := &handle{client: client, endpoint: strings.TrimRight(base, "/") + "/api/scpi"}

	// A reachability probe stands in for a connect handshake; HTTP has no
	// session, but a dead address should fail at resolve time, not on the
	// first measurement.
	if err := h.probe(ctx); err != nil {
		client.CloseIdleConnections()
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("LXI endpoint reachable.", "alias", decl.Alias, "endpoint", h.endpoint)
	return h, nil
}

type handle struct {
	client   *http.Client
	endpoint string
}

func (h *handle) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", h.endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("probing %s: status %s", h.endpoint, resp.Status)
	}
	return nil
}

func (h *handle) Invoke(ctx context.Context, op string, args []cty.Value) (cty.Value, error) {
	msg := instrument.FormatArgs(args)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(msg))
	if err != nil {
		return cty.NilVal, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := h.client.Do(req)
	if err != nil {
		return cty.NilVal, fmt.Errorf("sending %q: %w", msg, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cty.NilVal, fmt.Errorf("reading reply to %q: %w", msg, err)
	}
	if resp.StatusCode != http.StatusOK {
		return cty.NilVal, fmt.Errorf("%q rejected: status %s: %s", msg, resp.Status, strings.TrimSpace(string(body)))
	}
	if op != instrument.OpQuery {
		return cty.NilVal, nil
	}
	return instrument.ParseResponse(string(body)), nil
}

func (h *handle) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
