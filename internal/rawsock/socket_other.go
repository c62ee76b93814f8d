//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package rawsock

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// SocketTransport is unavailable on this platform; use ModePacketConn.
type SocketTransport struct {
	opts Options
}

// NewSocketTransport returns a transport whose Open always fails.
func NewSocketTransport(opts Options) *SocketTransport {
	return &SocketTransport{opts: opts}
}

func (t *SocketTransport) unsupported() error {
	return fmt.Errorf("rawsock: %s sockets: %w", t.opts.Mode, errors.ErrUnsupported)
}

// Open always fails.
func (t *SocketTransport) Open(Family) (Handle, error) {
	return nil, t.unsupported()
}

// SendTo always fails.
func (t *SocketTransport) SendTo(Handle, []byte, netip.Addr) (int, error) {
	return 0, t.unsupported()
}

// WaitReadable always fails.
func (t *SocketTransport) WaitReadable(context.Context, Handle, time.Duration) (bool, error) {
	return false, t.unsupported()
}

// ReceiveFrom always fails.
func (t *SocketTransport) ReceiveFrom(Handle, []byte) (int, netip.Addr, error) {
	return 0, netip.Addr{}, t.unsupported()
}
