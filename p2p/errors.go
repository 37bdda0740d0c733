package p2p

import "errors"

// Sentinel errors surfaced by the overlay layer. Wrapped with fmt.Errorf at
// the call site so callers can still see which peer/address was involved.
var (
	ErrPeerUnavailable = errors.New("p2p: peer unavailable")
	ErrTimeout         = errors.New("p2p: timed out waiting for peer responses")
)
