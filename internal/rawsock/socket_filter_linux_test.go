//go:build linux

package rawsock

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestSetICMPFilter_RawSockets(t *testing.T) {
	tests := []struct {
		family  Family
		pass    []int
		blocked []int
	}{
		{IPv4, []int{0, 3, 11}, []int{8, 13, 14}},
		{IPv6, []int{1, 3, 129}, []int{128, 133, 135, 136}},
	}

	for _, tc := range tests {
		t.Run(tc.family.String(), func(t *testing.T) {
			tr := NewSocketTransport(Options{Mode: ModeRaw})
			h := openOrSkip(t, tr, tc.family)
			defer h.Close()

			sh := h.(*socketHandle)
			if !sh.ReceivesAll() {
				t.Fatal("ReceivesAll() = false for SOCK_RAW")
			}

			blocks := func(typ int) bool {
				if tc.family == IPv4 {
					mask, err := unix.GetsockoptInt(sh.fd, unix.SOL_RAW, icmpFilter)
					if err != nil {
						t.Fatalf("getsockopt(ICMP_FILTER) error = %v", err)
					}
					return uint32(mask)&(1<<uint(typ)) != 0
				}
				f, err := unix.GetsockoptICMPv6Filter(sh.fd, unix.IPPROTO_ICMPV6, icmpv6Filter)
				if err != nil {
					t.Fatalf("getsockopt(ICMPV6_FILTER) error = %v", err)
				}
				return f.Data[typ>>5]&(1<<(uint(typ)&31)) != 0
			}

			for _, typ := range tc.pass {
				if blocks(typ) {
					t.Errorf("type %d blocked, want passed", typ)
				}
			}
			for _, typ := range tc.blocked {
				if !blocks(typ) {
					t.Errorf("type %d passed, want blocked", typ)
				}
			}
		})
	}
}

func TestSetICMPFilter_DatagramSocketsUnfiltered(t *testing.T) {
	tr := NewSocketTransport(Options{Mode: ModeDatagram})
	h := openOrSkip(t, tr, IPv4)
	defer h.Close()

	if ReceivesAll(h) {
		t.Error("ReceivesAll() = true for a datagram ping socket")
	}
}
