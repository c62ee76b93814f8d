//go:build linux || darwin || freebsd || netbsd || openbsd

package rawsock

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/postalsys/echoprobe/internal/logging"
)

// SocketTransport talks to the kernel directly through socket(2), sendto(2),
// poll(2) and recvfrom(2).
type SocketTransport struct {
	opts   Options
	logger *slog.Logger
}

// NewSocketTransport creates a transport backed by file descriptors.
func NewSocketTransport(opts Options) *SocketTransport {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &SocketTransport{opts: opts, logger: logger}
}

type socketHandle struct {
	mu     sync.Mutex
	fd     int
	family Family
	raw    bool
	closed bool
}

func (h *socketHandle) Family() Family { return h.family }

// ReceivesAll is true for SOCK_RAW sockets.
func (h *socketHandle) ReceivesAll() bool { return h.raw }

func (h *socketHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	if err := unix.Close(h.fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

// descriptor returns the fd, or ErrClosed once Close has run.
func (h *socketHandle) descriptor() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return -1, ErrClosed
	}
	return h.fd, nil
}

// Open creates an ICMP socket for family.
func (t *SocketTransport) Open(family Family) (Handle, error) {
	domain := unix.AF_INET
	if family == IPv6 {
		domain = unix.AF_INET6
	}
	typ := unix.SOCK_DGRAM
	if t.opts.Mode == ModeRaw {
		typ = unix.SOCK_RAW
	}

	fd, err := unix.Socket(domain, typ, family.Protocol())
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if t.opts.LowDelay {
		t.setTrafficClass(fd, family)
	}
	if typ == unix.SOCK_RAW {
		if err := setICMPFilter(fd, family); err != nil {
			t.logger.Debug("failed to install ICMP filter",
				logging.KeyFamily, family.String(),
				logging.KeyError, err)
		}
	}

	return &socketHandle{fd: fd, family: family, raw: typ == unix.SOCK_RAW}, nil
}

func (t *SocketTransport) setTrafficClass(fd int, family Family) {
	class := LowDelayClass(family)

	var err error
	if family == IPv6 {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, class)
	} else {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, class)
	}
	if err != nil {
		t.logger.Debug("failed to set low delay traffic class",
			logging.KeyFamily, family.String(),
			logging.KeyError, err)
	}
}

// SendTo writes b to dst.
func (t *SocketTransport) SendTo(h Handle, b []byte, dst netip.Addr) (int, error) {
	sh, err := asSocketHandle(h)
	if err != nil {
		return 0, err
	}
	fd, err := sh.descriptor()
	if err != nil {
		return 0, err
	}

	sa, err := sockaddr(sh.family, dst)
	if err != nil {
		return 0, err
	}

	for {
		err = unix.Sendto(fd, b, 0, sa)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, os.NewSyscallError("sendto", err)
	}
	return len(b), nil
}

// WaitReadable polls the socket in short slices until it becomes readable,
// the timeout elapses or ctx is done.
func (t *SocketTransport) WaitReadable(ctx context.Context, h Handle, timeout time.Duration) (bool, error) {
	sh, err := asSocketHandle(h)
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fd, err := sh.descriptor()
		if err != nil {
			return false, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		ms := int(pollSliceFor(remaining) / time.Millisecond)
		if ms == 0 {
			ms = 1
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, os.NewSyscallError("poll", err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return false, fmt.Errorf("poll: invalid descriptor %d", fd)
		}
		// POLLERR counts as readable: the pending socket error surfaces from recvfrom.
		return true, nil
	}
}

// ReceiveFrom reads one message into buf.
func (t *SocketTransport) ReceiveFrom(h Handle, buf []byte) (int, netip.Addr, error) {
	sh, err := asSocketHandle(h)
	if err != nil {
		return 0, netip.Addr{}, err
	}
	fd, err := sh.descriptor()
	if err != nil {
		return 0, netip.Addr{}, err
	}

	var (
		n    int
		from unix.Sockaddr
	)
	for {
		n, from, err = unix.Recvfrom(fd, buf, 0)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, netip.Addr{}, os.NewSyscallError("recvfrom", err)
	}

	if sh.raw && sh.family == IPv4 {
		n = stripIPv4Header(buf, n)
	}

	return n, addrFromSockaddr(from), nil
}

// stripIPv4Header moves the ICMP message to the front of buf and returns its
// length. Buffers that do not hold a parseable header are left untouched.
func stripIPv4Header(buf []byte, n int) int {
	hdr, err := ipv4.ParseHeader(buf[:n])
	if err != nil || hdr.Len > n {
		return n
	}
	copy(buf, buf[hdr.Len:n])
	return n - hdr.Len
}

func asSocketHandle(h Handle) (*socketHandle, error) {
	sh, ok := h.(*socketHandle)
	if !ok {
		return nil, fmt.Errorf("rawsock: foreign handle %T", h)
	}
	return sh, nil
}

func sockaddr(family Family, dst netip.Addr) (unix.Sockaddr, error) {
	switch family {
	case IPv4:
		if !dst.Is4() {
			return nil, fmt.Errorf("destination %s is not an IPv4 address", dst)
		}
		return &unix.SockaddrInet4{Addr: dst.As4()}, nil
	case IPv6:
		if !dst.Is6() {
			return nil, fmt.Errorf("destination %s is not an IPv6 address", dst)
		}
		zone, err := zoneIndex(dst.Zone())
		if err != nil {
			return nil, err
		}
		return &unix.SockaddrInet6{Addr: dst.As16(), ZoneId: zone}, nil
	default:
		return nil, fmt.Errorf("unsupported family %d", family)
	}
}

// zoneIndex resolves an IPv6 zone (interface name or numeric index).
func zoneIndex(zone string) (uint32, error) {
	if zone == "" {
		return 0, nil
	}
	if idx, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(idx), nil
	}
	ifi, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, fmt.Errorf("resolve zone %q: %w", zone, err)
	}
	return uint32(ifi.Index), nil
}

func addrFromSockaddr(sa unix.Sockaddr) netip.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(a.Addr)
	case *unix.SockaddrInet6:
		return netip.AddrFrom16(a.Addr)
	default:
		return netip.Addr{}
	}
}
