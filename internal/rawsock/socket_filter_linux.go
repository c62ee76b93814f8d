//go:build linux

package rawsock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Socket options from linux/icmp.h and linux/icmpv6.h.
const (
	icmpFilter   = 1 // ICMP_FILTER, level SOL_RAW
	icmpv6Filter = 1 // ICMPV6_FILTER, level IPPROTO_ICMPV6
)

// setICMPFilter restricts a raw socket to filterTypes. Linux blocks the
// types whose bit is set; IPv4 types above 31 always pass.
func setICMPFilter(fd int, family Family) error {
	if family == IPv6 {
		var f unix.ICMPv6Filter
		for i := range f.Data {
			f.Data[i] = ^uint32(0)
		}
		for _, typ := range filterTypes(family) {
			f.Data[typ>>5] &^= 1 << (uint(typ) & 31)
		}
		return os.NewSyscallError("setsockopt", unix.SetsockoptICMPv6Filter(fd, unix.IPPROTO_ICMPV6, icmpv6Filter, &f))
	}

	mask := ^uint32(0)
	for _, typ := range filterTypes(family) {
		mask &^= 1 << uint(typ)
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_RAW, icmpFilter, int(int32(mask))))
}
