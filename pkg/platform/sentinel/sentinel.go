package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Gateways, channels and sinks return
// these (wrapped) so services can classify failures without importing drivers.
//
//   - ErrInvalidState: a session or client was used after it was closed
//   - ErrUnavailable: a registry, remote inbox or sink could not be reached
var (
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
