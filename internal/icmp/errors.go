package icmp

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrorKind classifies why a probe failed.
type ErrorKind int

const (
	// KindInvalidAddress means the address is not an IPv4 or IPv6 literal.
	KindInvalidAddress ErrorKind = iota + 1
	// KindSocketUnavailable means no ICMP socket could be opened.
	KindSocketUnavailable
	// KindSendFailed means the echo request could not be sent.
	KindSendFailed
	// KindTimeout means nothing arrived before the timeout.
	KindTimeout
	// KindWaitFailed means the readiness wait itself failed.
	KindWaitFailed
	// KindReceiveFailed means reading the reply failed.
	KindReceiveFailed
	// KindShortPacket means fewer than HeaderLen bytes arrived.
	KindShortPacket
	// KindCanceled means the caller's context ended the probe.
	KindCanceled
	// KindInternal means the probe panicked.
	KindInternal
)

// Sentinel errors matched by *ProbeError via errors.Is.
var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrSocketUnavailable = errors.New("socket unavailable")
	ErrSendFailed        = errors.New("send failed")
	ErrTimeout           = errors.New("timeout")
	ErrWaitFailed        = errors.New("wait failed")
	ErrReceiveFailed     = errors.New("receive failed")
	ErrShortPacket       = errors.New("short packet")
	ErrCanceled          = errors.New("canceled")
	ErrInternal          = errors.New("internal error")
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidAddress:    ErrInvalidAddress,
	KindSocketUnavailable: ErrSocketUnavailable,
	KindSendFailed:        ErrSendFailed,
	KindTimeout:           ErrTimeout,
	KindWaitFailed:        ErrWaitFailed,
	KindReceiveFailed:     ErrReceiveFailed,
	KindShortPacket:       ErrShortPacket,
	KindCanceled:          ErrCanceled,
	KindInternal:          ErrInternal,
}

// String returns a snake_case name suitable for metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidAddress:
		return "invalid_address"
	case KindSocketUnavailable:
		return "socket_unavailable"
	case KindSendFailed:
		return "send_failed"
	case KindTimeout:
		return "timeout"
	case KindWaitFailed:
		return "wait_failed"
	case KindReceiveFailed:
		return "receive_failed"
	case KindShortPacket:
		return "short_packet"
	case KindCanceled:
		return "canceled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ProbeError describes a failed probe.
type ProbeError struct {
	Kind    ErrorKind
	Address string

	// Errno is the system error code behind socket failures, or 0.
	Errno syscall.Errno

	// Length is the observed byte count for KindShortPacket.
	Length int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *ProbeError) Error() string {
	sentinel := kindSentinels[e.Kind]
	if sentinel == nil {
		sentinel = ErrInternal
	}

	msg := fmt.Sprintf("probe %s: %v", e.Address, sentinel)
	switch {
	case e.Kind == KindShortPacket:
		msg = fmt.Sprintf("%s: got %d bytes, need at least %d", msg, e.Length, HeaderLen)
	case e.Err != nil:
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *ProbeError) Is(target error) bool {
	return target != nil && kindSentinels[e.Kind] == target
}

// KindOf returns the kind of a *ProbeError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// errnoOf extracts a system error code from err's chain.
func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}

func newProbeError(kind ErrorKind, address string, err error) *ProbeError {
	return &ProbeError{
		Kind:    kind,
		Address: address,
		Errno:   errnoOf(err),
		Err:     err,
	}
}
