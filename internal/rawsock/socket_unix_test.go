//go:build linux || darwin || freebsd || netbsd || openbsd

package rawsock

import (
	"bytes"
	"net/netip"
	"testing"

	"golang.org/x/sys/unix"
)

func TestStripIPv4Header(t *testing.T) {
	icmpMsg := []byte{0, 0, 0xf7, 0xff, 0x04, 0xd2, 0x00, 0x01}
	hdr := []byte{
		0x45, 0x00, 0x00, 0x1c, // version/IHL, TOS, total length 28
		0x00, 0x00, 0x00, 0x00,
		0x40, 0x01, 0x00, 0x00, // TTL 64, protocol ICMP
		127, 0, 0, 1,
		127, 0, 0, 1,
	}
	buf := make([]byte, 64)
	n := copy(buf, append(hdr, icmpMsg...))

	got := stripIPv4Header(buf, n)
	if got != len(icmpMsg) {
		t.Fatalf("stripIPv4Header() = %d, want %d", got, len(icmpMsg))
	}
	if !bytes.Equal(buf[:got], icmpMsg) {
		t.Errorf("payload = %x, want %x", buf[:got], icmpMsg)
	}
}

func TestStripIPv4Header_ShortBufferUntouched(t *testing.T) {
	buf := []byte{0, 0, 0, 0, 1, 2}
	if got := stripIPv4Header(buf, len(buf)); got != len(buf) {
		t.Errorf("stripIPv4Header() = %d, want %d", got, len(buf))
	}
}

func TestSockaddr(t *testing.T) {
	sa, err := sockaddr(IPv4, netip.MustParseAddr("192.0.2.7"))
	if err != nil {
		t.Fatalf("sockaddr(IPv4) error = %v", err)
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok || in4.Addr != [4]byte{192, 0, 2, 7} {
		t.Errorf("sockaddr(IPv4) = %#v", sa)
	}

	sa, err = sockaddr(IPv6, netip.MustParseAddr("2001:db8::1%3"))
	if err != nil {
		t.Fatalf("sockaddr(IPv6) error = %v", err)
	}
	in6, ok := sa.(*unix.SockaddrInet6)
	if !ok || in6.ZoneId != 3 {
		t.Errorf("sockaddr(IPv6) = %#v, want zone 3", sa)
	}

	if _, err := sockaddr(IPv4, netip.MustParseAddr("::1")); err == nil {
		t.Error("sockaddr(IPv4, ::1) should fail")
	}
	if _, err := sockaddr(IPv6, netip.MustParseAddr("127.0.0.1")); err == nil {
		t.Error("sockaddr(IPv6, 127.0.0.1) should fail")
	}
}

func TestZoneIndex(t *testing.T) {
	if idx, err := zoneIndex(""); err != nil || idx != 0 {
		t.Errorf("zoneIndex(\"\") = %d, %v", idx, err)
	}
	if idx, err := zoneIndex("12"); err != nil || idx != 12 {
		t.Errorf("zoneIndex(\"12\") = %d, %v", idx, err)
	}
	if _, err := zoneIndex("no-such-interface0"); err == nil {
		t.Error("zoneIndex() should fail for unknown interface")
	}
}

func TestAddrFromSockaddr(t *testing.T) {
	got := addrFromSockaddr(&unix.SockaddrInet4{Addr: [4]byte{10, 0, 0, 1}})
	if got != netip.MustParseAddr("10.0.0.1") {
		t.Errorf("addrFromSockaddr(v4) = %v", got)
	}
	if got := addrFromSockaddr(nil); got.IsValid() {
		t.Errorf("addrFromSockaddr(nil) = %v, want invalid", got)
	}
}

func TestSocketTransport_ForeignHandle(t *testing.T) {
	tr := NewSocketTransport(Options{})
	if _, err := tr.SendTo(fakeHandle{}, nil, netip.MustParseAddr("127.0.0.1")); err == nil {
		t.Error("SendTo() with foreign handle should fail")
	}
}

type fakeHandle struct{}

func (fakeHandle) Family() Family { return IPv4 }
func (fakeHandle) Close() error   { return nil }
