package icmp

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"testing"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/postalsys/echoprobe/internal/rawsock"
)

func TestEchoRequest_MarshalIPv4(t *testing.T) {
	req := NewEchoRequest(netip.MustParseAddr("192.0.2.1"), 0xabcd, 0x0102, []byte("12345"))

	b, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := []byte{8, 0, 0, 0, 0xab, 0xcd, 0x01, 0x02, '1', '2', '3', '4', '5'}
	if len(b) != len(want) {
		t.Fatalf("len = %d, want %d", len(b), len(want))
	}
	if !bytes.Equal(b[:2], want[:2]) || !bytes.Equal(b[4:], want[4:]) {
		t.Errorf("Marshal() = % x, want % x (checksum aside)", b, want)
	}

	// A correct RFC 1071 checksum folds the whole message to 0xffff.
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	if sum != 0xffff {
		t.Errorf("checksum does not verify: folded sum = %#x", sum)
	}
}

func TestEchoRequest_MarshalIPv6(t *testing.T) {
	req := NewEchoRequest(netip.MustParseAddr("2001:db8::1"), 1, 2, nil)

	b, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if len(b) != HeaderLen {
		t.Fatalf("len = %d, want %d", len(b), HeaderLen)
	}
	if b[0] != TypeEchoRequestV6 || b[1] != 0 {
		t.Errorf("type/code = %d/%d, want 128/0", b[0], b[1])
	}
	if b[2] != 0 || b[3] != 0 {
		t.Errorf("checksum = %#x, want 0 for the kernel to fill", b[2:4])
	}
}

func TestEchoRequest_PayloadIsCopied(t *testing.T) {
	payload := []byte("abc")
	req := NewEchoRequest(netip.MustParseAddr("192.0.2.1"), 1, 1, payload)

	payload[0] = 'X'
	if got := string(req.Payload()); got != "abc" {
		t.Errorf("Payload() = %q after caller mutation, want %q", got, "abc")
	}

	out := req.Payload()
	out[1] = 'Y'
	if got := string(req.Payload()); got != "abc" {
		t.Errorf("Payload() = %q after result mutation, want %q", got, "abc")
	}
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		family rawsock.Family
		typ    int
		want   string
	}{
		{rawsock.IPv4, TypeEchoReplyV4, ipv4.ICMPTypeEchoReply.String()},
		{rawsock.IPv4, 3, ipv4.ICMPTypeDestinationUnreachable.String()},
		{rawsock.IPv6, TypeEchoReplyV6, ipv6.ICMPTypeEchoReply.String()},
		{rawsock.IPv6, 1, ipv6.ICMPTypeDestinationUnreachable.String()},
	}

	for _, tt := range tests {
		if got := TypeName(tt.family, tt.typ); got != tt.want {
			t.Errorf("TypeName(%v, %d) = %q, want %q", tt.family, tt.typ, got, tt.want)
		}
	}
}

func TestParseReply_EchoReply(t *testing.T) {
	req := NewEchoRequest(netip.MustParseAddr("2001:db8::1"), 7, 9, []byte("xy"))
	sent, err := req.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	reply, err := ParseReply(echoReplyFor(sent), req, true)
	if err != nil {
		t.Fatalf("ParseReply() error = %v", err)
	}
	if reply.Family != rawsock.IPv6 || reply.Type != TypeEchoReplyV6 {
		t.Errorf("family/type = %v/%d", reply.Family, reply.Type)
	}
	if !reply.Matched || reply.Identifier != 7 || reply.Sequence != 9 {
		t.Errorf("reply = %+v, want matched 7/9", reply)
	}
	if reply.Length != HeaderLen+2 {
		t.Errorf("Length = %d, want %d", reply.Length, HeaderLen+2)
	}
}

func TestParseReply_TooShort(t *testing.T) {
	req := NewEchoRequest(netip.MustParseAddr("192.0.2.1"), 1, 1, nil)
	if _, err := ParseReply([]byte{0, 0, 0}, req, false); err == nil {
		t.Error("expected error for 3-byte message")
	}
}

func TestParseReply_QuotedErrors(t *testing.T) {
	v4 := NewEchoRequest(netip.MustParseAddr("192.0.2.1"), 0x10, 0x20, []byte("12345"))
	v4Sent, _ := v4.Marshal()
	v6 := NewEchoRequest(netip.MustParseAddr("2001:db8::1"), 0x10, 0x20, []byte("12345"))
	v6Sent, _ := v6.Marshal()

	tests := []struct {
		name        string
		req         *EchoRequest
		msg         icmp.Message
		wantType    int
		wantMatched bool
	}{
		{
			name:        "v4 time exceeded",
			req:         v4,
			msg:         icmp.Message{Type: ipv4.ICMPTypeTimeExceeded, Body: &icmp.TimeExceeded{Data: quotedIPv4(v4Sent)}},
			wantType:    11,
			wantMatched: true,
		},
		{
			name:        "v6 destination unreachable",
			req:         v6,
			msg:         icmp.Message{Type: ipv6.ICMPTypeDestinationUnreachable, Code: 3, Body: &icmp.DstUnreach{Data: quotedIPv6(v6Sent)}},
			wantType:    1,
			wantMatched: true,
		},
		{
			name:        "v4 unreachable without quote",
			req:         v4,
			msg:         icmp.Message{Type: ipv4.ICMPTypeDestinationUnreachable, Body: &icmp.DstUnreach{Data: []byte{1, 2, 3}}},
			wantType:    3,
			wantMatched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.msg.Marshal(nil)
			if err != nil {
				t.Fatal(err)
			}

			reply, err := ParseReply(b, tt.req, true)
			if err != nil {
				t.Fatalf("ParseReply() error = %v", err)
			}
			if reply.Type != tt.wantType {
				t.Errorf("Type = %d, want %d", reply.Type, tt.wantType)
			}
			if reply.IsEchoReply() {
				t.Error("IsEchoReply() = true for error message")
			}
			if reply.Matched != tt.wantMatched {
				t.Errorf("Matched = %v, want %v", reply.Matched, tt.wantMatched)
			}
			if tt.wantMatched && (reply.Identifier != 0x10 || reply.Sequence != 0x20) {
				t.Errorf("quoted id/seq = %#x/%#x, want 0x10/0x20", reply.Identifier, reply.Sequence)
			}
		})
	}
}

func TestParseReply_EchoRequestIsNotReply(t *testing.T) {
	// An IPv4 echo request looped back to a raw socket is not a reply.
	req := NewEchoRequest(netip.MustParseAddr("127.0.0.1"), 1, 1, nil)
	sent, _ := req.Marshal()

	reply, err := ParseReply(sent, req, false)
	if err != nil {
		t.Fatalf("ParseReply() error = %v", err)
	}
	if reply.IsEchoReply() || reply.Matched {
		t.Errorf("reply = %+v, want unmatched non-echo-reply", reply)
	}
}
