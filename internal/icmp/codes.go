package icmp

import (
	"github.com/postalsys/echoprobe/internal/rawsock"
)

// Error message types that carry a meaningful code.
const (
	typeDstUnreachV4   = 3
	typeTimeExceededV4 = 11
	typeDstUnreachV6   = 1
	typeTimeExceededV6 = 3
)

// https://www.iana.org/assignments/icmp-parameters/icmp-parameters.xhtml#icmp-parameters-codes-3
var dstUnreachCodesV4 = []string{
	"network unreachable",
	"host unreachable",
	"protocol unreachable",
	"port unreachable",
	"fragmentation needed and DF set",
	"source route failed",
	"destination network unknown",
	"destination host unknown",
	"source host isolated",
	"communication with destination network administratively prohibited",
	"communication with destination host administratively prohibited",
	"destination network unreachable for type of service",
	"destination host unreachable for type of service",
	"communication administratively prohibited",
	"host precedence violation",
	"precedence cutoff in effect",
}

// RFC 4443 section 3.1
var dstUnreachCodesV6 = []string{
	"no route to destination",
	"communication with destination administratively prohibited",
	"beyond scope of source address",
	"address unreachable",
	"port unreachable",
	"source address failed ingress/egress policy",
	"reject route to destination",
	"error in source routing header",
}

var timeExceededCodes = []string{
	"hop limit exceeded in transit",
	"fragment reassembly time exceeded",
}

// CodeName returns a description of code for destination-unreachable and
// time-exceeded messages, or "" when none is known.
func CodeName(family rawsock.Family, typ, code int) string {
	var table []string
	switch {
	case family == rawsock.IPv4 && typ == typeDstUnreachV4:
		table = dstUnreachCodesV4
	case family == rawsock.IPv6 && typ == typeDstUnreachV6:
		table = dstUnreachCodesV6
	case family == rawsock.IPv4 && typ == typeTimeExceededV4,
		family == rawsock.IPv6 && typ == typeTimeExceededV6:
		table = timeExceededCodes
	}

	if code < 0 || code >= len(table) {
		return ""
	}
	return table[code]
}

// CodeName describes the reply's code, or returns "".
func (r *EchoReply) CodeName() string {
	return CodeName(r.Family, r.Type, r.Code)
}
