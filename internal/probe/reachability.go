package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Reachability is the cheap connectivity check run before any capability
// probe.
type Reachability interface {
	Check(ctx context.Context, host string) error
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TCPReachability reports a host reachable when any of Ports accepts a TCP
// connection within Timeout. Ports are dialled concurrently and the first
// success cancels the rest.
type TCPReachability struct {
	Ports   []int
	Timeout time.Duration
	Dial    DialFunc
}

// NewTCPReachability returns a gate over ports with the given timeout.
func NewTCPReachability(ports []int, timeout time.Duration) *TCPReachability {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	var dialer net.Dialer
	return &TCPReachability{Ports: ports, Timeout: timeout, Dial: dialer.DialContext}
}

func (r *TCPReachability) Check(ctx context.Context, host string) error {
	if len(r.Ports) == 0 {
		return ErrNoPorts
	}

	// The timeout bounds the whole gate, not each port.
	probeCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	results := make(chan error, len(r.Ports))
	for _, port := range r.Ports {
		go func(port int) {
			conn, err := r.Dial(probeCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
			if err != nil {
				results <- err
				return
			}
			_ = conn.Close()
			results <- nil
		}(port)
	}

	var lastErr error
	for range r.Ports {
		err := <-results
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %v", ErrUnreachable, host, lastErr)
}
