// Package bridge converts probe results into the integer conventions used
// across the C boundary.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/logging"
)

// Status codes returned by echoprobe_probe. Values are stable; new kinds get
// new numbers.
const (
	StatusOK                = 0
	StatusInvalidAddress    = 1
	StatusSocketUnavailable = 2
	StatusSendFailed        = 3
	StatusTimeout           = 4
	StatusWaitFailed        = 5
	StatusReceiveFailed     = 6
	StatusShortPacket       = 7
	StatusCanceled          = 8
	StatusInternal          = 9
	StatusInvalidArgument   = 10
)

// Exit codes returned by echoprobe_ping.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

var kindStatus = map[icmp.ErrorKind]int{
	icmp.KindInvalidAddress:    StatusInvalidAddress,
	icmp.KindSocketUnavailable: StatusSocketUnavailable,
	icmp.KindSendFailed:        StatusSendFailed,
	icmp.KindTimeout:           StatusTimeout,
	icmp.KindWaitFailed:        StatusWaitFailed,
	icmp.KindReceiveFailed:     StatusReceiveFailed,
	icmp.KindShortPacket:       StatusShortPacket,
	icmp.KindCanceled:          StatusCanceled,
	icmp.KindInternal:          StatusInternal,
}

// ErrInvalidArgument reports an out-of-range integer from the caller.
var ErrInvalidArgument = errors.New("invalid argument")

// Status maps err to a status code. Nil maps to StatusOK; errors that are not
// probe errors map to StatusInternal.
func Status(err error) int {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, ErrInvalidArgument) {
		return StatusInvalidArgument
	}
	if code, ok := kindStatus[icmp.KindOf(err)]; ok {
		return code
	}
	return StatusInternal
}

// Reply is the flat form of an echo reply handed to C callers.
type Reply struct {
	Type       int
	Code       int
	Identifier int
	Sequence   int
	Length     int
	RTTMicros  int64
	Matched    bool
	Errno      int
}

// Bridge runs probes on behalf of foreign callers.
type Bridge struct {
	prober *icmp.Prober
	logger *slog.Logger
}

// New creates a Bridge around prober.
func New(prober *icmp.Prober, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bridge{
		prober: prober,
		logger: logger.With(slog.String(logging.KeyComponent, "bridge")),
	}
}

// Probe validates the integer arguments, runs one probe and returns the
// status code with the flattened reply. On failure the reply carries only
// Errno and Length where they apply.
func (b *Bridge) Probe(ctx context.Context, address string, identifier, sequence, timeoutMillis int) (int, Reply) {
	if !fitsUint16(identifier) || !fitsUint16(sequence) || timeoutMillis < 0 {
		b.logger.Debug("rejected probe arguments",
			logging.KeyIdentifier, identifier,
			logging.KeySequence, sequence,
			logging.KeyTimeout, timeoutMillis)
		return StatusInvalidArgument, Reply{}
	}

	timeout := time.Duration(timeoutMillis) * time.Millisecond
	reply, err := b.prober.Probe(ctx, address, uint16(identifier), uint16(sequence), timeout)
	if err != nil {
		var out Reply
		var pe *icmp.ProbeError
		if errors.As(err, &pe) {
			out.Errno = int(pe.Errno)
			out.Length = pe.Length
		}
		return Status(err), out
	}

	return StatusOK, Flatten(reply)
}

// Ping sends count probes (at least one) with increasing sequence numbers and
// returns ExitSuccess when at least one matched echo reply came back.
func (b *Bridge) Ping(ctx context.Context, address string, count int) int {
	if count < 1 {
		count = 1
	}

	stats, err := b.prober.Series(ctx, address, icmp.SeriesOptions{Count: count}, nil)
	if err != nil {
		b.logger.Debug("ping failed", logging.KeyAddress, address, logging.KeyError, err)
		return ExitFailure
	}

	snap := stats.Snapshot()
	b.logger.Debug("ping finished",
		logging.KeyAddress, address,
		logging.KeyCount, snap.Sent,
		"received", snap.Received)
	if snap.Received > 0 {
		return ExitSuccess
	}
	return ExitFailure
}

// Flatten converts a reply into its C-friendly form.
func Flatten(reply *icmp.EchoReply) Reply {
	return Reply{
		Type:       reply.Type,
		Code:       reply.Code,
		Identifier: int(reply.Identifier),
		Sequence:   int(reply.Sequence),
		Length:     reply.Length,
		RTTMicros:  reply.RTT.Microseconds(),
		Matched:    reply.Matched,
	}
}

func fitsUint16(v int) bool {
	return v >= 0 && v <= math.MaxUint16
}
