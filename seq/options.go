package seq

import "log/slog"

// DefaultOutputBuffer is the size in bytes of a client's output buffer.
const DefaultOutputBuffer = 16384

type options struct {
	name         string
	nonblocking  bool
	strict       bool
	outputBuffer int
	logger       *slog.Logger
}

// Option configures a Client at Open.
type Option func(*options)

// WithName sets the client name advertised to peers.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithNonblocking opens the client in nonblocking mode.
func WithNonblocking(nonblocking bool) Option {
	return func(o *options) {
		o.nonblocking = nonblocking
	}
}

// WithStrictValidation makes Send reject events that are both direct and
// scheduled on a queue instead of preferring direct delivery.
func WithStrictValidation(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithOutputBuffer sets the output buffer size in bytes.
func WithOutputBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.outputBuffer = n
		}
	}
}

// WithLogger routes client logging to l instead of the debug log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
