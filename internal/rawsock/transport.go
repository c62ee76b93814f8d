package rawsock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/postalsys/echoprobe/internal/logging"
)

// Family is the address family of a probe socket.
type Family int

const (
	// IPv4 selects ICMP over IPv4.
	IPv4 Family = 4
	// IPv6 selects ICMPv6.
	IPv6 Family = 6
)

// IANA protocol numbers.
const (
	ProtocolICMP   = 1
	ProtocolICMPv6 = 58
)

// FamilyOf returns the family implied by the address's syntax.
func FamilyOf(addr netip.Addr) Family {
	if addr.Is4() {
		return IPv4
	}
	return IPv6
}

// String returns "ipv4" or "ipv6".
func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Protocol returns the IANA protocol number carried by sockets of this family.
func (f Family) Protocol() int {
	if f == IPv6 {
		return ProtocolICMPv6
	}
	return ProtocolICMP
}

// Mode selects how probe sockets are opened.
type Mode int

const (
	// ModeDatagram uses unprivileged ICMP datagram sockets.
	ModeDatagram Mode = iota
	// ModeRaw uses SOCK_RAW sockets.
	ModeRaw
	// ModePacketConn uses golang.org/x/net/icmp packet connections.
	ModePacketConn
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeDatagram:
		return "dgram"
	case ModeRaw:
		return "raw"
	case ModePacketConn:
		return "packetconn"
	default:
		return "unknown"
	}
}

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "dgram", "datagram":
		return ModeDatagram, nil
	case "raw":
		return ModeRaw, nil
	case "packetconn":
		return ModePacketConn, nil
	default:
		return 0, fmt.Errorf("unknown socket mode: %s (must be dgram, raw, or packetconn)", s)
	}
}

// ErrClosed is returned by operations on a closed handle.
var ErrClosed = errors.New("rawsock: handle closed")

// Handle is an open probe socket.
type Handle interface {
	// Family returns the address family the socket was opened for.
	Family() Family

	// Close releases the socket. It is safe to call more than once.
	Close() error
}

// SharedReceiver is implemented by handles whose socket sees every inbound
// ICMP message of its family, not only answers to its own requests. The
// kernel does not rewrite echo identifiers on such sockets.
type SharedReceiver interface {
	ReceivesAll() bool
}

// ReceivesAll reports whether h sees ICMP traffic meant for other sockets.
func ReceivesAll(h Handle) bool {
	sr, ok := h.(SharedReceiver)
	return ok && sr.ReceivesAll()
}

// filterTypes lists the message types a shared socket lets through: echo
// replies and the errors that can quote an echo request.
func filterTypes(family Family) []int {
	if family == IPv6 {
		return []int{1, 2, 3, 4, 129} // unreachable, too big, time exceeded, parameter problem, echo reply
	}
	return []int{0, 3, 4, 5, 11, 12} // echo reply, unreachable, source quench, redirect, time exceeded, parameter problem
}

// Transport is the set of socket operations the prober depends on.
type Transport interface {
	// Open creates a socket for family, bound to no local address.
	Open(family Family) (Handle, error)

	// SendTo writes one ICMP message to dst.
	SendTo(h Handle, b []byte, dst netip.Addr) (int, error)

	// WaitReadable blocks until the socket is readable, the timeout elapses
	// or ctx is done. A timeout yields (false, nil).
	WaitReadable(ctx context.Context, h Handle, timeout time.Duration) (bool, error)

	// ReceiveFrom reads one ICMP message into buf. IP headers are never
	// included in the returned bytes.
	ReceiveFrom(h Handle, buf []byte) (int, netip.Addr, error)
}

// Options configures a Transport.
type Options struct {
	// Mode selects the socket flavour.
	Mode Mode

	// Privileged selects raw "ip4:icmp" / "ip6:ipv6-icmp" listeners for
	// ModePacketConn. The socket modes ignore it.
	Privileged bool

	// LowDelay marks new sockets with the low-delay traffic class for their
	// family. Failure to apply the marking is logged and otherwise ignored.
	LowDelay bool

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// Low-delay traffic classes applied when Options.LowDelay is set.
const (
	LowDelayTOS    = 0x10 // RFC 791 low-delay bit
	ExpeditedClass = 0x2e // DSCP expedited forwarding
)

// LowDelayClass returns the low-delay marking for family.
func LowDelayClass(family Family) int {
	if family == IPv6 {
		return ExpeditedClass
	}
	return LowDelayTOS
}

// New returns the transport selected by opts.Mode.
func New(opts Options) Transport {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	opts.Logger = opts.Logger.With(slog.String(logging.KeyComponent, "rawsock"))

	if opts.Mode == ModePacketConn {
		return NewPacketConnTransport(opts)
	}
	return NewSocketTransport(opts)
}

// Check verifies that a probe socket for family can be opened with t.
// The socket is closed again before returning.
func Check(t Transport, family Family) error {
	h, err := t.Open(family)
	if err != nil {
		return err
	}
	return h.Close()
}

func pollSliceFor(remaining time.Duration) time.Duration {
	if remaining > pollSlice {
		return pollSlice
	}
	return remaining
}

// pollSlice bounds a single blocking wait so cancellation is observed promptly.
const pollSlice = 50 * time.Millisecond
