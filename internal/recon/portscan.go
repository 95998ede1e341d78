package recon

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TCPProber considers a host live when a TCP connection to Port succeeds.
type TCPProber struct {
	Port    int
	Timeout time.Duration
}

// Probe implements Prober. A TCP probe has no status code to report.
func (p *TCPProber) Probe(ctx context.Context, host, addr string) (Probe, error) {
	dialer := net.Dialer{Timeout: p.Timeout}
	target := net.JoinHostPort(addr, strconv.Itoa(p.Port))
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return Probe{}, fmt.Errorf("tcp probe %s (%s): %w", host, target, err)
	}
	conn.Close()
	return Probe{}, nil
}

// ProbeMode selects the liveness probe run after a successful resolution.
type ProbeMode string

const (
	ProbeNone ProbeMode = "none"
	ProbeHTTP ProbeMode = "http"
	ProbeTCP  ProbeMode = "tcp"
)

// NewProber builds the prober for mode, or returns nil for ProbeNone. A TCP
// probe without a port dials 80.
func NewProber(mode ProbeMode, port int, timeout time.Duration, userAgent string) (Prober, error) {
	switch mode {
	case ProbeNone, "":
		return nil, nil
	case ProbeHTTP:
		return NewHTTPProber(port, timeout, userAgent), nil
	case ProbeTCP:
		if port == 0 {
			port = 80
		}
		return &TCPProber{Port: port, Timeout: timeout}, nil
	}
	return nil, fmt.Errorf("unknown probe mode %q (want none, http or tcp)", mode)
}
