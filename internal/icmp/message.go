package icmp

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/postalsys/echoprobe/internal/rawsock"
)

// ICMP type numbers used by the prober.
const (
	TypeEchoReplyV4   = 0
	TypeEchoRequestV4 = 8
	TypeEchoRequestV6 = 128
	TypeEchoReplyV6   = 129
)

// EchoRequest is one echo request. It is immutable once built.
type EchoRequest struct {
	Destination netip.Addr
	Identifier  uint16
	Sequence    uint16
	payload     []byte
}

// NewEchoRequest builds a request. The payload is copied.
func NewEchoRequest(dst netip.Addr, identifier, sequence uint16, payload []byte) *EchoRequest {
	return &EchoRequest{
		Destination: dst,
		Identifier:  identifier,
		Sequence:    sequence,
		payload:     append([]byte(nil), payload...),
	}
}

// Family returns the address family of the destination.
func (r *EchoRequest) Family() rawsock.Family {
	return rawsock.FamilyOf(r.Destination)
}

// Payload returns a copy of the request payload.
func (r *EchoRequest) Payload() []byte {
	return append([]byte(nil), r.payload...)
}

// Marshal encodes the request as an ICMP message. IPv6 messages are
// returned with a zero checksum for the kernel to fill in.
func (r *EchoRequest) Marshal() ([]byte, error) {
	var typ icmp.Type = ipv4.ICMPTypeEcho
	if r.Family() == rawsock.IPv6 {
		typ = ipv6.ICMPTypeEchoRequest
	}

	msg := icmp.Message{
		Type: typ,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(r.Identifier),
			Seq:  int(r.Sequence),
			Data: r.payload,
		},
	}

	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("marshal ICMP message: %w", err)
	}
	return b, nil
}

// EchoReply describes the ICMP message received in answer to a request.
type EchoReply struct {
	Family     rawsock.Family
	Type       int
	Code       int
	Identifier uint16
	Sequence   uint16

	// Length is the number of ICMP bytes received.
	Length int

	Source netip.Addr
	RTT    time.Duration

	// Matched is true when the message refers to the request that was sent.
	Matched bool
}

// IsEchoReply reports whether the message is an echo reply for its family.
func (r *EchoReply) IsEchoReply() bool {
	return r.Type == EchoReplyType(r.Family)
}

// TypeName returns the IANA name of the message type.
func (r *EchoReply) TypeName() string {
	return TypeName(r.Family, r.Type)
}

// EchoReplyType returns the echo reply type number for family.
func EchoReplyType(family rawsock.Family) int {
	if family == rawsock.IPv6 {
		return TypeEchoReplyV6
	}
	return TypeEchoReplyV4
}

// TypeName returns the IANA name of an ICMP type for family.
func TypeName(family rawsock.Family, typ int) string {
	if family == rawsock.IPv6 {
		return ipv6.ICMPType(typ).String()
	}
	return ipv4.ICMPType(typ).String()
}

// ParseReply decodes b, which must hold at least HeaderLen bytes, as the
// answer to req.
func ParseReply(b []byte, req *EchoRequest, verifyIdentifier bool) (*EchoReply, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("ICMP message too short: %d bytes", len(b))
	}

	family := req.Family()
	reply := &EchoReply{
		Family: family,
		Type:   int(b[0]),
		Code:   int(b[1]),
		Length: len(b),
	}

	quoted := false
	switch {
	case reply.IsEchoReply():
		reply.Identifier = binary.BigEndian.Uint16(b[4:6])
		reply.Sequence = binary.BigEndian.Uint16(b[6:8])
		quoted = true
	default:
		msg, err := icmp.ParseMessage(family.Protocol(), b)
		if err == nil {
			if id, seq, ok := quotedEcho(family, errorBody(msg)); ok {
				reply.Identifier = id
				reply.Sequence = seq
				quoted = true
			}
		}
	}

	reply.Matched = quoted && reply.Sequence == req.Sequence &&
		(!verifyIdentifier || reply.Identifier == req.Identifier)

	return reply, nil
}

// errorBody returns the quoted datagram carried by ICMP error messages.
func errorBody(msg *icmp.Message) []byte {
	switch body := msg.Body.(type) {
	case *icmp.DstUnreach:
		return body.Data
	case *icmp.TimeExceeded:
		return body.Data
	case *icmp.ParamProb:
		return body.Data
	case *icmp.PacketTooBig:
		return body.Data
	default:
		return nil
	}
}

// quotedEcho finds the echo request quoted after the IP header in an ICMP
// error message and returns its identifier and sequence.
func quotedEcho(family rawsock.Family, data []byte) (id, seq uint16, ok bool) {
	var inner []byte
	switch family {
	case rawsock.IPv4:
		if len(data) < ipv4.HeaderLen {
			return 0, 0, false
		}
		hl := int(data[0]&0x0f) << 2
		if hl < ipv4.HeaderLen || len(data) < hl+HeaderLen || data[9] != rawsock.ProtocolICMP {
			return 0, 0, false
		}
		inner = data[hl:]
		if inner[0] != TypeEchoRequestV4 {
			return 0, 0, false
		}
	case rawsock.IPv6:
		if len(data) < ipv6.HeaderLen+HeaderLen || data[6] != rawsock.ProtocolICMPv6 {
			return 0, 0, false
		}
		inner = data[ipv6.HeaderLen:]
		if inner[0] != TypeEchoRequestV6 {
			return 0, 0, false
		}
	default:
		return 0, 0, false
	}

	return binary.BigEndian.Uint16(inner[4:6]), binary.BigEndian.Uint16(inner[6:8]), true
}
