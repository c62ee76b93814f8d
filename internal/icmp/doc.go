// Package icmp sends single ICMP echo requests and reports the reply.
//
// A probe is one complete cycle: open a socket for the destination's address
// family, send one echo request, wait for the socket to become readable,
// receive, and parse the ICMP header of whatever arrived. The socket is
// released on every exit path.
//
// # Address handling
//
// Destinations are IPv4 or IPv6 literals. The family is taken from the
// literal's syntax; no name resolution is performed. IPv4-mapped IPv6
// literals (::ffff:192.0.2.1) are probed over IPv4.
//
// # Checksums
//
// IPv4 echo requests carry a checksum computed in user space. IPv6 requests
// are sent with a zero checksum; the kernel fills it in for ICMPv6 sockets
// because the pseudo-header depends on the source address it selects.
//
// # Reply matching
//
// The identifier and sequence returned in an EchoReply are parsed from the
// received message, not copied from the request. EchoReply.Matched reports
// whether the sequence equals the one sent and, when Config.VerifyIdentifier
// is set, whether the identifier does too. Identifier verification is off
// by default because unprivileged datagram sockets on Linux replace the
// identifier with the socket's local port.
//
// Messages of other types (destination unreachable, time exceeded) are
// returned as successful probes with their actual type so the caller can
// decide what they mean. When such a message quotes the original echo
// request, its identifier and sequence are taken from the quote.
//
// # Errors
//
// Every failure is a *ProbeError whose Kind can be tested with errors.Is
// against ErrInvalidAddress, ErrSocketUnavailable, ErrSendFailed, ErrTimeout,
// ErrWaitFailed, ErrReceiveFailed, ErrShortPacket, ErrCanceled and
// ErrInternal. ErrTimeout is the ordinary outcome for unreachable hosts.
package icmp
