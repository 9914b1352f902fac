package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPReachability_NoPorts(t *testing.T) {
	r := NewTCPReachability(nil, time.Second)
	assert.ErrorIs(t, r.Check(context.Background(), "ws01"), ErrNoPorts)
}

func TestTCPReachability_AnyPortSucceeds(t *testing.T) {
	r := NewTCPReachability([]int{445, 5985}, time.Second)
	r.Dial = func(_ context.Context, _, address string) (net.Conn, error) {
		if strings.HasSuffix(address, ":5985") {
			c1, c2 := net.Pipe()
			_ = c2.Close()
			return c1, nil
		}
		return nil, errors.New("connection refused")
	}
	assert.NoError(t, r.Check(context.Background(), "ws01"))
}

func TestTCPReachability_AllPortsFail(t *testing.T) {
	r := NewTCPReachability([]int{445, 5985}, time.Second)
	r.Dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	err := r.Check(context.Background(), "ws01")
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Contains(t, err.Error(), "ws01")
}

func TestTCPReachability_TimeoutBoundsHungDial(t *testing.T) {
	r := NewTCPReachability([]int{5985}, 50*time.Millisecond)
	r.Dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	start := time.Now()
	err := r.Check(context.Background(), "ws01")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTCPReachability_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewTCPReachability([]int{5985}, time.Second)
	r.Dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return nil, ctx.Err()
	}
	assert.ErrorIs(t, r.Check(ctx, "ws01"), context.Canceled)
}
