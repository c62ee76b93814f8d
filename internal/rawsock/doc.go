// Package rawsock wraps the platform socket primitives used to exchange ICMP
// echo messages.
//
// A Transport exposes four operations to the prober: Open, SendTo,
// WaitReadable and ReceiveFrom. Every Handle returned by Open is owned by a
// single caller and must be closed by it. All platform socket option codes
// are confined to this package.
//
// # Modes
//
// ModeDatagram opens unprivileged "ping" sockets (SOCK_DGRAM with the ICMP
// protocol). On Linux this requires the calling group to be inside the
// ping_group_range sysctl:
//
//	sysctl -w net.ipv4.ping_group_range="0 65535"
//
// The kernel rewrites the echo identifier to the socket's local port in this
// mode and filters replies per socket.
//
// ModeRaw opens SOCK_RAW sockets and needs CAP_NET_RAW or root. IPv4 replies
// arrive with their IP header attached; the transport strips it before
// handing the ICMP message back.
//
// ModePacketConn uses golang.org/x/net/icmp.ListenPacket and works on every
// platform x/net supports, at the cost of performing the receive as part of
// the readiness wait.
package rawsock
