package chaos

import (
	"context"
	"errors"
	"net/netip"
	"syscall"
	"testing"
	"time"

	"github.com/postalsys/echoprobe/internal/rawsock"
)

type stubHandle struct{ family rawsock.Family }

func (h stubHandle) Family() rawsock.Family { return h.family }
func (h stubHandle) Close() error           { return nil }

// stubTransport is always readable and returns a fixed 16-byte message.
type stubTransport struct {
	waits int
}

func (s *stubTransport) Open(family rawsock.Family) (rawsock.Handle, error) {
	return stubHandle{family}, nil
}

func (s *stubTransport) SendTo(h rawsock.Handle, b []byte, dst netip.Addr) (int, error) {
	return len(b), nil
}

func (s *stubTransport) WaitReadable(ctx context.Context, h rawsock.Handle, timeout time.Duration) (bool, error) {
	s.waits++
	return true, nil
}

func (s *stubTransport) ReceiveFrom(h rawsock.Handle, buf []byte) (int, netip.Addr, error) {
	return copy(buf, make([]byte, 16)), netip.MustParseAddr("192.0.2.1"), nil
}

func wrapped(configs ...FaultConfig) (*Transport, *stubTransport) {
	inner := &stubTransport{}
	return Wrap(inner, NewFaultInjector(configs...), nil), inner
}

func TestTransport_PassThrough(t *testing.T) {
	tr, inner := wrapped()

	h, err := tr.Open(rawsock.IPv4)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if n, err := tr.SendTo(h, []byte{1, 2, 3}, netip.MustParseAddr("192.0.2.1")); err != nil || n != 3 {
		t.Fatalf("SendTo() = %d, %v", n, err)
	}
	ready, err := tr.WaitReadable(context.Background(), h, time.Second)
	if err != nil || !ready {
		t.Fatalf("WaitReadable() = %v, %v", ready, err)
	}
	if inner.waits != 1 {
		t.Errorf("inner waits = %d, want 1", inner.waits)
	}
	n, _, err := tr.ReceiveFrom(h, make([]byte, 64))
	if err != nil || n != 16 {
		t.Errorf("ReceiveFrom() = %d, %v", n, err)
	}
}

func TestTransport_ErrorCarriesErrno(t *testing.T) {
	tr, _ := wrapped(FaultConfig{Type: FaultError, Op: OpOpen, Probability: 1, Errno: syscall.EACCES})

	_, err := tr.Open(rawsock.IPv6)
	if !errors.Is(err, ErrInjected) {
		t.Errorf("Open() error = %v, want ErrInjected", err)
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) || errno != syscall.EACCES {
		t.Errorf("errno = %v, want EACCES", errno)
	}
}

func TestTransport_DropWaitsOutTimeout(t *testing.T) {
	tr, inner := wrapped(FaultConfig{Type: FaultDrop, Op: OpWait, Probability: 1})

	start := time.Now()
	ready, err := tr.WaitReadable(context.Background(), stubHandle{rawsock.IPv4}, 60*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil || ready {
		t.Fatalf("WaitReadable() = %v, %v; want not ready", ready, err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, want about 60ms", elapsed)
	}
	if inner.waits != 0 {
		t.Error("dropped wait reached the inner transport")
	}
}

func TestTransport_DropObservesCancel(t *testing.T) {
	tr, _ := wrapped(FaultConfig{Type: FaultDrop, Op: OpWait, Probability: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.WaitReadable(ctx, stubHandle{rawsock.IPv4}, 5*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReadable() error = %v, want deadline exceeded", err)
	}
}

func TestTransport_DelayConsumesTimeout(t *testing.T) {
	tr, inner := wrapped(FaultConfig{
		Type:        FaultDelay,
		Op:          OpWait,
		Probability: 1,
		MinDelay:    100 * time.Millisecond,
	})

	ready, err := tr.WaitReadable(context.Background(), stubHandle{rawsock.IPv4}, 30*time.Millisecond)
	if err != nil || ready {
		t.Fatalf("WaitReadable() = %v, %v; want timeout", ready, err)
	}
	if inner.waits != 0 {
		t.Error("delay longer than timeout reached the inner transport")
	}

	tr, inner = wrapped(FaultConfig{
		Type:        FaultDelay,
		Op:          OpWait,
		Probability: 1,
		MinDelay:    10 * time.Millisecond,
	})
	ready, err = tr.WaitReadable(context.Background(), stubHandle{rawsock.IPv4}, time.Second)
	if err != nil || !ready {
		t.Fatalf("WaitReadable() = %v, %v; want ready", ready, err)
	}
	if inner.waits != 1 {
		t.Errorf("inner waits = %d, want 1", inner.waits)
	}
}

func TestTransport_Truncate(t *testing.T) {
	tr, _ := wrapped(FaultConfig{Type: FaultTruncate, Op: OpReceive, Probability: 1, Length: 4})

	n, _, err := tr.ReceiveFrom(stubHandle{rawsock.IPv4}, make([]byte, 64))
	if err != nil {
		t.Fatalf("ReceiveFrom() error = %v", err)
	}
	if n != 4 {
		t.Errorf("n = %d, want 4", n)
	}
}

func TestTransport_Panic(t *testing.T) {
	tr, _ := wrapped(FaultConfig{Type: FaultPanic, Op: OpSend, Probability: 1})

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected injected panic")
		}
	}()
	tr.SendTo(stubHandle{rawsock.IPv4}, []byte{0}, netip.MustParseAddr("192.0.2.1"))
}
