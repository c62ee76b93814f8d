package chaos

import (
	"testing"
	"time"
)

func TestFaultInjector_Basic(t *testing.T) {
	injector := NewFaultInjector(FaultConfig{
		Type:        FaultDrop,
		Op:          OpWait,
		Probability: 1.0, // Always inject
	})

	fault, ok := injector.MaybeInject(OpWait)
	if !ok || fault.Type != FaultDrop {
		t.Fatalf("MaybeInject(OpWait) = %v, %v; want drop", fault.Type, ok)
	}

	stats := injector.GetStats()
	if stats[FaultDrop] != 1 {
		t.Errorf("drop hits = %d, want 1", stats[FaultDrop])
	}
}

func TestFaultInjector_OtherOpUnaffected(t *testing.T) {
	injector := NewFaultInjector(FaultConfig{
		Type:        FaultError,
		Op:          OpSend,
		Probability: 1.0,
	})

	for _, op := range []Op{OpOpen, OpWait, OpReceive} {
		if _, ok := injector.MaybeInject(op); ok {
			t.Errorf("MaybeInject(%s) fired for a send fault", op)
		}
	}
}

func TestFaultInjector_Disabled(t *testing.T) {
	injector := NewFaultInjector(FaultConfig{
		Type:        FaultDrop,
		Op:          OpWait,
		Probability: 1.0,
	})

	injector.Disable()
	if injector.IsEnabled() {
		t.Fatal("IsEnabled() = true after Disable")
	}
	if _, ok := injector.MaybeInject(OpWait); ok {
		t.Error("expected no fault when disabled")
	}

	injector.Enable()
	if _, ok := injector.MaybeInject(OpWait); !ok {
		t.Error("expected fault after Enable")
	}
}

func TestFaultInjector_Probability(t *testing.T) {
	// 0% probability - should never inject
	injector := NewFaultInjector(FaultConfig{
		Type:        FaultDrop,
		Op:          OpWait,
		Probability: 0.0,
	})

	for i := 0; i < 100; i++ {
		if _, ok := injector.MaybeInject(OpWait); ok {
			t.Fatal("expected no fault with 0% probability")
		}
	}
}

func TestFaultInjector_SeedIsReproducible(t *testing.T) {
	run := func() []bool {
		injector := NewFaultInjector(FaultConfig{Type: FaultDrop, Op: OpWait, Probability: 0.5})
		injector.Seed(42)
		hits := make([]bool, 32)
		for i := range hits {
			_, hits[i] = injector.MaybeInject(OpWait)
		}
		return hits
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("roll %d differs between seeded runs", i)
		}
	}
}

func TestFaultInjector_Delay(t *testing.T) {
	injector := NewFaultInjector()
	config := FaultConfig{MinDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond}

	for i := 0; i < 20; i++ {
		d := injector.Delay(config)
		if d < config.MinDelay || d >= config.MaxDelay {
			t.Fatalf("delay %v outside [10ms, 20ms)", d)
		}
	}

	fixed := FaultConfig{MinDelay: 5 * time.Millisecond}
	if d := injector.Delay(fixed); d != 5*time.Millisecond {
		t.Errorf("Delay() = %v, want MinDelay when MaxDelay is unset", d)
	}
}

func TestFaultInjector_Reset(t *testing.T) {
	injector := NewFaultInjector(FaultConfig{
		Type:        FaultError,
		Op:          OpOpen,
		Probability: 1.0,
	})

	for i := 0; i < 5; i++ {
		injector.MaybeInject(OpOpen)
	}
	if got := injector.GetStats()[FaultError]; got != 5 {
		t.Fatalf("error hits = %d, want 5", got)
	}

	injector.Reset()
	if got := injector.GetStats()[FaultError]; got != 0 {
		t.Errorf("error hits after Reset = %d, want 0", got)
	}
}

func TestFaultTypeString(t *testing.T) {
	tests := []struct {
		fault FaultType
		want  string
	}{
		{FaultDrop, "drop"},
		{FaultDelay, "delay"},
		{FaultPanic, "panic"},
		{FaultError, "error"},
		{FaultTruncate, "truncate"},
		{FaultType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.fault.String(); got != tt.want {
			t.Errorf("FaultType(%d).String() = %q, want %q", tt.fault, got, tt.want)
		}
	}
}
