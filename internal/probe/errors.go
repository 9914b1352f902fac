package probe

import "errors"

var (
	// ErrUnreachable is returned by the reachability gate when no port
	// accepted a connection.
	ErrUnreachable = errors.New("host unreachable")

	// ErrNoPorts is returned when the reachability gate has nothing to try.
	ErrNoPorts = errors.New("no reachability ports configured")
)
