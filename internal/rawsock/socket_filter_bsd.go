//go:build darwin || freebsd || netbsd || openbsd

package rawsock

import (
	"os"

	"golang.org/x/sys/unix"
)

// setICMPFilter restricts a raw ICMPv6 socket to filterTypes. BSD filters
// pass the types whose bit is set. Raw IPv4 sockets have no filter here.
func setICMPFilter(fd int, family Family) error {
	if family != IPv6 {
		return nil
	}

	var f unix.ICMPv6Filter
	for _, typ := range filterTypes(family) {
		f.Filt[typ>>5] |= 1 << (uint(typ) & 31)
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptICMPv6Filter(fd, unix.IPPROTO_ICMPV6, unix.ICMP6_FILTER, &f))
}
