package rawsock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/postalsys/echoprobe/internal/logging"
)

// maxMessageSize bounds the internal read buffer of a packet connection.
const maxMessageSize = 64 * 1024

// PacketConnTransport uses golang.org/x/net/icmp packet connections. Datagram
// listeners ("udp4"/"udp6") are used unless Options.Privileged is set.
type PacketConnTransport struct {
	opts   Options
	logger *slog.Logger
}

// NewPacketConnTransport creates a transport backed by icmp.PacketConn.
func NewPacketConnTransport(opts Options) *PacketConnTransport {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &PacketConnTransport{opts: opts, logger: logger}
}

type packetConnHandle struct {
	conn   *icmp.PacketConn
	family Family
	dgram  bool

	mu      sync.Mutex
	buf     []byte
	pending bool
	n       int
	src     netip.Addr
	readErr error
	closed  bool
}

func (h *packetConnHandle) Family() Family { return h.family }

// ReceivesAll is true for privileged "ip4:icmp" / "ip6:ipv6-icmp" listeners.
func (h *packetConnHandle) ReceivesAll() bool { return !h.dgram }

func (h *packetConnHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.conn.Close()
}

func (t *PacketConnTransport) network(family Family) (network, address string) {
	switch {
	case family == IPv4 && t.opts.Privileged:
		return "ip4:icmp", "0.0.0.0"
	case family == IPv4:
		return "udp4", "0.0.0.0"
	case t.opts.Privileged:
		return "ip6:ipv6-icmp", "::"
	default:
		return "udp6", "::"
	}
}

// Open listens on an unbound ICMP packet connection for family.
func (t *PacketConnTransport) Open(family Family) (Handle, error) {
	network, address := t.network(family)

	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", network, err)
	}

	if t.opts.LowDelay {
		t.setTrafficClass(conn, family)
	}
	if t.opts.Privileged {
		t.setICMPFilter(conn, family)
	}

	return &packetConnHandle{
		conn:   conn,
		family: family,
		dgram:  !t.opts.Privileged,
	}, nil
}

func (t *PacketConnTransport) setTrafficClass(conn *icmp.PacketConn, family Family) {
	var err error
	if family == IPv6 {
		err = conn.IPv6PacketConn().SetTrafficClass(LowDelayClass(family))
	} else {
		err = conn.IPv4PacketConn().SetTOS(LowDelayClass(family))
	}
	if err != nil {
		t.logger.Debug("failed to set low delay traffic class",
			logging.KeyFamily, family.String(),
			logging.KeyError, err)
	}
}

// setICMPFilter restricts a privileged listener to filterTypes. IPv4
// filters are only available on Linux; elsewhere the failure is logged.
func (t *PacketConnTransport) setICMPFilter(conn *icmp.PacketConn, family Family) {
	var err error
	if family == IPv6 {
		var f ipv6.ICMPFilter
		f.SetAll(true)
		for _, typ := range filterTypes(family) {
			f.Accept(ipv6.ICMPType(typ))
		}
		err = conn.IPv6PacketConn().SetICMPFilter(&f)
	} else {
		var f ipv4.ICMPFilter
		f.SetAll(true)
		for _, typ := range filterTypes(family) {
			f.Accept(ipv4.ICMPType(typ))
		}
		err = conn.IPv4PacketConn().SetICMPFilter(&f)
	}
	if err != nil {
		t.logger.Debug("failed to install ICMP filter",
			logging.KeyFamily, family.String(),
			logging.KeyError, err)
	}
}

// SendTo writes b to dst.
func (t *PacketConnTransport) SendTo(h Handle, b []byte, dst netip.Addr) (int, error) {
	ph, err := asPacketConnHandle(h)
	if err != nil {
		return 0, err
	}

	var addr net.Addr
	if ph.dgram {
		addr = &net.UDPAddr{IP: dst.AsSlice(), Zone: dst.Zone()}
	} else {
		addr = &net.IPAddr{IP: dst.AsSlice(), Zone: dst.Zone()}
	}
	return ph.conn.WriteTo(b, addr)
}

// WaitReadable performs a deadline-bounded read and parks the result until
// ReceiveFrom collects it. Cancelling ctx forces the deadline into the past.
func (t *PacketConnTransport) WaitReadable(ctx context.Context, h Handle, timeout time.Duration) (bool, error) {
	ph, err := asPacketConnHandle(h)
	if err != nil {
		return false, err
	}

	ph.mu.Lock()
	defer ph.mu.Unlock()

	if ph.closed {
		return false, ErrClosed
	}
	if ph.pending {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := ph.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, fmt.Errorf("set read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		ph.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if ph.buf == nil {
		ph.buf = make([]byte, maxMessageSize)
	}
	n, peer, err := ph.conn.ReadFrom(ph.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false, nil
		}
		// The socket was readable; the error belongs to the receive step.
		ph.pending = true
		ph.readErr = err
		return true, nil
	}

	ph.pending = true
	ph.n = n
	ph.src = addrFromNet(peer)
	ph.readErr = nil
	return true, nil
}

// ReceiveFrom hands out the message parked by WaitReadable, or reads
// directly when nothing is parked.
func (t *PacketConnTransport) ReceiveFrom(h Handle, buf []byte) (int, netip.Addr, error) {
	ph, err := asPacketConnHandle(h)
	if err != nil {
		return 0, netip.Addr{}, err
	}

	ph.mu.Lock()
	defer ph.mu.Unlock()

	if ph.closed {
		return 0, netip.Addr{}, ErrClosed
	}
	if !ph.pending {
		n, peer, err := ph.conn.ReadFrom(buf)
		if err != nil {
			return 0, netip.Addr{}, err
		}
		return n, addrFromNet(peer), nil
	}

	ph.pending = false
	if ph.readErr != nil {
		err := ph.readErr
		ph.readErr = nil
		return 0, netip.Addr{}, err
	}
	n := copy(buf, ph.buf[:ph.n])
	return n, ph.src, nil
}

func asPacketConnHandle(h Handle) (*packetConnHandle, error) {
	ph, ok := h.(*packetConnHandle)
	if !ok {
		return nil, fmt.Errorf("rawsock: foreign handle %T", h)
	}
	return ph, nil
}

func addrFromNet(a net.Addr) netip.Addr {
	var ip net.IP
	switch addr := a.(type) {
	case *net.UDPAddr:
		ip = addr.IP
	case *net.IPAddr:
		ip = addr.IP
	default:
		return netip.Addr{}
	}
	out, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return out.Unmap()
}

var (
	_ Transport = (*PacketConnTransport)(nil)
	_ Transport = (*SocketTransport)(nil)
)
