package presence

import (
	"context"
	"net"
	"time"
)

// Prober is a cheap reachability test run before any remote call.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) error

// Probe calls f(ctx).
func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// TCPProber opens and immediately closes a TCP connection.
type TCPProber struct {
	Address string
	Timeout time.Duration
}

// NewTCPProber creates a TCPProber.
func NewTCPProber(address string, timeout time.Duration) *TCPProber {
	return &TCPProber{Address: address, Timeout: timeout}
}

// Probe dials Address and reports whether the connection succeeded.
func (p *TCPProber) Probe(ctx context.Context) error {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}
