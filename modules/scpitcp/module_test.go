package scpitcp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/atomsai/testflow/internal/instrument"
)

// fakeSCPIServer accepts one connection at a time and answers queries
// (lines ending in '?') from a canned table, recording everything received.
type fakeSCPIServer struct {
	listener net.Listener
	answers  map[string]string

	mu       sync.Mutex
	received []string
}

func newFakeSCPIServer(t *testing.T, answers map[string]string) *fakeSCPIServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSCPIServer{listener: ln, answers: answers}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSCPIServer) addr() string { return s.listener.Addr().String() }

func (s *fakeSCPIServer) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func (s *fakeSCPIServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSCPIServer) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		s.mu.Lock()
		s.received = append(s.received, line)
		s.mu.Unlock()

		if strings.HasSuffix(line, "?") {
			answer, ok := s.answers[line]
			if !ok {
				answer = "ERR"
			}
			if _, err := conn.Write([]byte(answer + "\n")); err != nil {
				return
			}
		}
	}
}

func dial(t *testing.T, address string) instrument.Handle {
	t.Helper()
	tr := &transport{}
	h, err := tr.Connect(context.Background(), instrument.Declaration{Alias: "dmm", Driver: "scpi.tcp", Address: address})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestConnect_DialFailure(t *testing.T) {
	tr := &transport{}
	// A closed listener's port refuses immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = tr.Connect(context.Background(), instrument.Declaration{Alias: "dmm", Address: addr})
	assert.Error(t, err)
}

func TestInvoke_QueryRoundTrip(t *testing.T) {
	server := newFakeSCPIServer(t, map[string]string{
		"MEAS:VOLT:DC?": "3.25",
	})
	h := dial(t, server.addr())

	v, err := h.Invoke(context.Background(), instrument.OpQuery, []cty.Value{cty.StringVal("MEAS:VOLT:DC?")})
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberFloatVal(3.25)))
}

func TestInvoke_CommandWritesWithoutReading(t *testing.T) {
	server := newFakeSCPIServer(t, map[string]string{
		"SYST:ERR?": "0,No error",
	})
	h := dial(t, server.addr())
	ctx := context.Background()

	_, err := h.Invoke(ctx, instrument.OpCommand, []cty.Value{cty.StringVal("*RST")})
	require.NoError(t, err)
	_, err = h.Invoke(ctx, instrument.OpCommand, []cty.Value{
		cty.StringVal("CONF:VOLT:DC"),
		cty.NumberFloatVal(10),
	})
	require.NoError(t, err)

	// A query afterwards proves the socket survived both writes and that
	// argument formatting joined tokens with single spaces.
	v, err := h.Invoke(ctx, instrument.OpQuery, []cty.Value{cty.StringVal("SYST:ERR?")})
	require.NoError(t, err)
	assert.Equal(t, "0,No error", v.AsString())
	assert.Equal(t, []string{"*RST", "CONF:VOLT:DC 10", "SYST:ERR?"}, server.lines())
}

func TestInvoke_TextReplyIsTrimmedString(t *testing.T) {
	server := newFakeSCPIServer(t, map[string]string{
		"*IDN?": "KEYSIGHT,34465A,MY1234,A.03.02",
	})
	h := dial(t, server.addr())

	v, err := h.Invoke(context.Background(), instrument.OpQuery, []cty.Value{cty.StringVal("*IDN?")})
	require.NoError(t, err)
	assert.Equal(t, "KEYSIGHT,34465A,MY1234,A.03.02", v.AsString())
}

func TestInvoke_QueryHonorsContextDeadline(t *testing.T) {
	// A server that never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			// Drain without replying.
			buf := make([]byte, 256)
			for {
				if _, err := conn.Read(buf); err != nil {
					return
				}
			}
		}
	}()

	h := dial(t, ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = h.Invoke(ctx, instrument.OpQuery, []cty.Value{cty.StringVal("READ?")})
	assert.Error(t, err)
}

func TestModule_RegistersDriver(t *testing.T) {
	drivers := instrument.NewDrivers()
	(&Module{}).Register(drivers)

	_, ok := drivers.Lookup("scpi.tcp")
	assert.True(t, ok)
}
