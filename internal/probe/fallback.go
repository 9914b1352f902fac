package probe

import (
	"context"
	"fmt"
)

// Protocol labels recorded on ProbeStatus.Protocol.
const (
	ProtocolCIM          = "CIM"
	ProtocolWMI          = "WMI"
	ProtocolServiceQuery = "Get-Service"
	ProtocolNetSecurity  = "NetSecurity"
	ProtocolNetsh        = "netsh"
)

// method is one way of obtaining a capability result.
type method[T any] struct {
	protocol string
	run      func(ctx context.Context) (T, error)
}

// withFallback runs primary and, if it fails, fallback. It returns the
// result of the first method that succeeds and the protocol that produced
// it. When both fail the error carries both causes. The fallback is not
// attempted once ctx is done.
func withFallback[T any](ctx context.Context, primary, fallback method[T]) (T, string, error) {
	v, err := primary.run(ctx)
	if err == nil {
		return v, primary.protocol, nil
	}
	if ctx.Err() != nil {
		var zero T
		return zero, "", fmt.Errorf("%s: %w", primary.protocol, ctx.Err())
	}

	v, ferr := fallback.run(ctx)
	if ferr == nil {
		return v, fallback.protocol, nil
	}
	var zero T
	return zero, "", fmt.Errorf("%s: %w; %s: %w", primary.protocol, err, fallback.protocol, ferr)
}
