package chaos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/postalsys/echoprobe/internal/logging"
	"github.com/postalsys/echoprobe/internal/rawsock"
)

// ErrInjected marks errors produced by FaultError.
var ErrInjected = errors.New("chaos: injected fault")

// Transport wraps a rawsock.Transport and injects faults into its
// operations.
type Transport struct {
	inner    rawsock.Transport
	injector *FaultInjector
	logger   *slog.Logger
}

// Wrap returns a fault-injecting transport around inner. A nil logger
// discards output.
func Wrap(inner rawsock.Transport, injector *FaultInjector, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Transport{
		inner:    inner,
		injector: injector,
		logger:   logger.With(slog.String(logging.KeyComponent, "chaos")),
	}
}

// Injector returns the fault injector driving t.
func (t *Transport) Injector() *FaultInjector {
	return t.injector
}

func (t *Transport) Open(family rawsock.Family) (rawsock.Handle, error) {
	if _, err := t.inject(context.Background(), OpOpen); err != nil {
		return nil, err
	}
	return t.inner.Open(family)
}

func (t *Transport) SendTo(h rawsock.Handle, b []byte, dst netip.Addr) (int, error) {
	if _, err := t.inject(context.Background(), OpSend); err != nil {
		return 0, err
	}
	return t.inner.SendTo(h, b, dst)
}

func (t *Transport) WaitReadable(ctx context.Context, h rawsock.Handle, timeout time.Duration) (bool, error) {
	fault, ok := t.injector.MaybeInject(OpWait)
	if ok {
		t.logFault(OpWait, fault)
		switch fault.Type {
		case FaultDrop:
			if err := sleep(ctx, timeout); err != nil {
				return false, err
			}
			return false, nil
		case FaultDelay:
			d := t.injector.Delay(fault)
			if d >= timeout {
				if err := sleep(ctx, timeout); err != nil {
					return false, err
				}
				return false, nil
			}
			if err := sleep(ctx, d); err != nil {
				return false, err
			}
			timeout -= d
		default:
			if err := t.apply(OpWait, fault); err != nil {
				return false, err
			}
		}
	}
	return t.inner.WaitReadable(ctx, h, timeout)
}

func (t *Transport) ReceiveFrom(h rawsock.Handle, buf []byte) (int, netip.Addr, error) {
	fault, err := t.inject(context.Background(), OpReceive)
	if err != nil {
		return 0, netip.Addr{}, err
	}
	n, src, err := t.inner.ReceiveFrom(h, buf)
	if err == nil && fault != nil && fault.Type == FaultTruncate && n > fault.Length {
		n = fault.Length
	}
	return n, src, err
}

// inject rolls for op and applies delay, panic and error faults. Other
// fault types are returned for the caller to interpret.
func (t *Transport) inject(ctx context.Context, op Op) (*FaultConfig, error) {
	fault, ok := t.injector.MaybeInject(op)
	if !ok {
		return nil, nil
	}
	t.logFault(op, fault)
	if fault.Type == FaultDelay {
		return &fault, sleep(ctx, t.injector.Delay(fault))
	}
	return &fault, t.apply(op, fault)
}

func (t *Transport) apply(op Op, fault FaultConfig) error {
	switch fault.Type {
	case FaultPanic:
		panic(fmt.Sprintf("chaos: injected panic in %s", op))
	case FaultError:
		if fault.Errno != 0 {
			return fmt.Errorf("%s: %w: %w", op, ErrInjected, fault.Errno)
		}
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

func (t *Transport) logFault(op Op, fault FaultConfig) {
	t.logger.Debug("injecting fault",
		"op", op.String(),
		"fault", fault.Type.String())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
