package icmp

import (
	"time"
)

// Protocol constants.
const (
	// HeaderLen is the size of an ICMP echo header.
	HeaderLen = 8

	// DefaultTimeout bounds the readiness wait when none is given.
	DefaultTimeout = 3 * time.Second

	// DefaultReceiveBufferSize is the largest reply read from the socket.
	DefaultReceiveBufferSize = 2048
)

// DefaultPayload is the trailer appended to every echo request.
var DefaultPayload = []byte("12345")

// Config holds configuration for the prober.
type Config struct {
	// Timeout is used when Probe is called with a non-positive timeout.
	Timeout time.Duration

	// Payload is appended after the echo header. Nil means DefaultPayload.
	Payload []byte

	// ReceiveBufferSize is the number of bytes read from the socket.
	ReceiveBufferSize int

	// VerifyIdentifier includes the identifier in reply matching.
	VerifyIdentifier bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		Payload:           DefaultPayload,
		ReceiveBufferSize: DefaultReceiveBufferSize,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Payload == nil {
		c.Payload = DefaultPayload
	}
	if c.ReceiveBufferSize < HeaderLen {
		c.ReceiveBufferSize = DefaultReceiveBufferSize
	}
	return c
}
