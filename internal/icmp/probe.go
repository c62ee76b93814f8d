package icmp

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/postalsys/echoprobe/internal/logging"
	"github.com/postalsys/echoprobe/internal/metrics"
	"github.com/postalsys/echoprobe/internal/rawsock"
	"github.com/postalsys/echoprobe/internal/recovery"
)

// Prober sends echo requests over a rawsock.Transport. A Prober holds no
// per-probe state and is safe for concurrent use; each probe opens its own
// socket.
type Prober struct {
	transport rawsock.Transport
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewProber creates a prober. A nil logger discards output.
func NewProber(transport rawsock.Transport, cfg Config, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Prober{
		transport: transport,
		config:    cfg.withDefaults(),
		logger:    logger.With(slog.String(logging.KeyComponent, "icmp")),
	}
}

// SetMetrics attaches a metrics sink. Nil disables metrics.
func (p *Prober) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Config returns the effective configuration.
func (p *Prober) Config() Config {
	return p.config
}

// ParseAddress parses an IPv4 or IPv6 literal. No name resolution is
// performed. IPv4-mapped IPv6 addresses are unmapped.
func ParseAddress(address string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Addr{}, newProbeError(KindInvalidAddress, address, err)
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	return addr, nil
}

// Probe sends one echo request to address and waits up to timeout for the
// answer. A non-positive timeout uses the configured default.
func (p *Prober) Probe(ctx context.Context, address string, identifier, sequence uint16, timeout time.Duration) (*EchoReply, error) {
	dst, err := ParseAddress(address)
	if err != nil {
		p.logger.Debug("address parse failed",
			logging.KeyAddress, address,
			logging.KeyError, err)
		p.recordResult("unknown", KindInvalidAddress.String())
		return nil, err
	}

	return p.Exchange(ctx, NewEchoRequest(dst, identifier, sequence, p.config.Payload), timeout)
}

// Exchange performs the send, wait, receive and parse cycle for req.
func (p *Prober) Exchange(ctx context.Context, req *EchoRequest, timeout time.Duration) (reply *EchoReply, err error) {
	if timeout <= 0 {
		timeout = p.config.Timeout
	}

	address := req.Destination.String()
	family := req.Family()
	logger := p.logger.With(
		logging.KeyAddress, address,
		logging.KeyFamily, family.String(),
		logging.KeyIdentifier, int(req.Identifier),
		logging.KeySequence, int(req.Sequence))

	defer func() {
		p.recordOutcome(family, reply, err)
	}()
	defer recovery.RecoverWithCallback(logger, "icmp.probe", func(pe *recovery.PanicError) {
		reply = nil
		err = newProbeError(KindInternal, address, pe)
	})

	h, err := p.transport.Open(family)
	if err != nil {
		return nil, p.fail(logger, newProbeError(KindSocketUnavailable, address, err))
	}
	if p.metrics != nil {
		p.metrics.RecordSocketOpen()
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			logger.Debug("socket close failed", logging.KeyError, cerr)
		}
		if p.metrics != nil {
			p.metrics.RecordSocketClose()
		}
	}()

	b, err := req.Marshal()
	if err != nil {
		return nil, p.fail(logger, newProbeError(KindSendFailed, address, err))
	}

	sentAt := time.Now()
	n, err := p.transport.SendTo(h, b, req.Destination)
	if err != nil {
		return nil, p.fail(logger, newProbeError(KindSendFailed, address, err))
	}
	if p.metrics != nil {
		p.metrics.RecordBytesSent(n)
	}

	// Raw sockets see every inbound ICMP message, including our own
	// request on loopback and replies meant for other processes. The
	// kernel leaves their identifiers alone, so they are always checked
	// and anything that does not answer this request is skipped.
	shared := rawsock.ReceivesAll(h)
	verify := p.config.VerifyIdentifier || shared
	deadline := sentAt.Add(timeout)
	buf := make([]byte, p.config.ReceiveBufferSize)
	var (
		src netip.Addr
		rtt time.Duration
	)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			logger.Debug("no reply within timeout", logging.KeyTimeout, timeout)
			return nil, newProbeError(KindTimeout, address, nil)
		}
		ready, err := p.transport.WaitReadable(ctx, h, remaining)
		if err != nil {
			kind := KindWaitFailed
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				kind = KindCanceled
			}
			return nil, p.fail(logger, newProbeError(kind, address, err))
		}
		if !ready {
			logger.Debug("no reply within timeout", logging.KeyTimeout, timeout)
			return nil, newProbeError(KindTimeout, address, nil)
		}

		var n int
		n, src, err = p.transport.ReceiveFrom(h, buf)
		if err != nil {
			return nil, p.fail(logger, newProbeError(KindReceiveFailed, address, err))
		}
		rtt = time.Since(sentAt)
		if p.metrics != nil {
			p.metrics.RecordBytesReceived(n)
		}

		if n < HeaderLen {
			if shared {
				logger.Debug("skipping short packet", logging.KeyLength, n)
				continue
			}
			pe := newProbeError(KindShortPacket, address, nil)
			pe.Length = n
			return nil, p.fail(logger, pe)
		}

		reply, err = ParseReply(buf[:n], req, verify)
		if err != nil {
			if shared {
				logger.Debug("skipping unparseable packet", logging.KeyError, err)
				continue
			}
			return nil, p.fail(logger, newProbeError(KindReceiveFailed, address, err))
		}
		if shared && !reply.Matched {
			logger.Debug("skipping unrelated ICMP message",
				logging.KeyType, reply.Type,
				"reply_identifier", int(reply.Identifier),
				"reply_sequence", int(reply.Sequence))
			continue
		}
		break
	}
	reply.Source = src
	reply.RTT = rtt

	switch {
	case !reply.IsEchoReply():
		logger.Warn("unexpected ICMP type",
			logging.KeyType, reply.Type,
			logging.KeyCode, reply.Code,
			"type_name", reply.TypeName(),
			"code_name", reply.CodeName())
	case !reply.Matched:
		logger.Warn("echo reply does not match request",
			"reply_identifier", int(reply.Identifier),
			"reply_sequence", int(reply.Sequence))
	default:
		logger.Debug("echo reply received",
			logging.KeyLength, reply.Length,
			logging.KeyDuration, rtt)
	}

	return reply, nil
}

// fail logs a probe failure and returns it.
func (p *Prober) fail(logger *slog.Logger, pe *ProbeError) error {
	attrs := []any{logging.KeyError, pe.Err}
	if pe.Errno != 0 {
		attrs = append(attrs, logging.KeyErrno, int(pe.Errno))
	}
	if pe.Kind == KindShortPacket {
		attrs = append(attrs, logging.KeyLength, pe.Length)
	}
	logger.Debug(pe.Kind.String(), attrs...)
	return pe
}

func (p *Prober) recordOutcome(family rawsock.Family, reply *EchoReply, err error) {
	if p.metrics == nil {
		return
	}
	if err != nil {
		p.recordResult(family.String(), KindOf(err).String())
		return
	}

	p.metrics.RecordReply(family.String(), reply.TypeName(), reply.RTT.Seconds())
	switch {
	case !reply.IsEchoReply():
		p.recordResult(family.String(), metrics.ResultUnexpected)
	case !reply.Matched:
		p.recordResult(family.String(), metrics.ResultMismatch)
	default:
		p.recordResult(family.String(), metrics.ResultSuccess)
	}
}

func (p *Prober) recordResult(family, result string) {
	if p.metrics != nil {
		p.metrics.RecordProbe(family, result)
	}
}
