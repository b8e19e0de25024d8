package proto

import "errors"

// Error taxonomy shared by the transport and the client core.
var (
	ErrConnection           = errors.New("seq: cannot open connection to sequencer")
	ErrConnectionClosed     = errors.New("seq: connection closed")
	ErrInvalidCapability    = errors.New("seq: invalid port capability")
	ErrInvalidParameter     = errors.New("seq: invalid parameter")
	ErrNoSuchEndpoint       = errors.New("seq: no such endpoint")
	ErrNoSuchQueue          = errors.New("seq: no such queue")
	ErrWouldBlock           = errors.New("seq: operation would block")
	ErrInvalidEvent         = errors.New("seq: invalid event")
	ErrAmbiguousDestination = errors.New("seq: ambiguous destination")
	ErrIO                   = errors.New("seq: transport i/o failure")
	ErrPermission           = errors.New("seq: operation not permitted")
)
