package transport

import (
	"context"
	"errors"
	"fmt"
)

// Descriptor identifies a logical connection independently of any physical
// handle. Handles come and go across reconnects; the descriptor is stable.
type Descriptor struct {
	Name string
	URL  string
	DB   int
}

// Transport is the request/response collaborator beneath the coordination
// core. Execute performs one round trip on an existing handle; Reconnect
// obtains a fresh handle for a logical connection whose old handle went
// stale. The core never creates or destroys handles itself.
type Transport interface {
	Execute(ctx context.Context, handle string, command string, args ...any) (any, error)
	Reconnect(ctx context.Context, desc Descriptor) (string, error)
}

// ErrStaleHandle marks transport failures caused by the handle no longer
// mapping to a live connection: pool entry missing, client disconnected,
// or pool acquire timeout. Callers retry these exactly once via
// reconnect-and-resubmit.
var ErrStaleHandle = errors.New("transport: stale connection handle")

// IsStale reports whether err indicates the handle should be reconnected.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleHandle)
}

func staleErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrStaleHandle)...)
}
