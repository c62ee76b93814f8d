// Package chaos provides fault injection for probe transports.
package chaos

import (
	"math/rand"
	"sync"
	"syscall"
	"time"
)

// FaultType represents the type of fault to inject.
type FaultType int

const (
	// FaultDrop swallows the reply: the readiness wait runs out its timeout.
	FaultDrop FaultType = iota
	// FaultDelay adds latency to operations.
	FaultDelay
	// FaultPanic causes a panic inside the operation.
	FaultPanic
	// FaultError causes an operation to return an error.
	FaultError
	// FaultTruncate shortens received messages.
	FaultTruncate
)

// String returns the fault name used in logs.
func (f FaultType) String() string {
	switch f {
	case FaultDrop:
		return "drop"
	case FaultDelay:
		return "delay"
	case FaultPanic:
		return "panic"
	case FaultError:
		return "error"
	case FaultTruncate:
		return "truncate"
	default:
		return "unknown"
	}
}

// Op identifies the transport operation a fault applies to.
type Op int

const (
	OpOpen Op = iota
	OpSend
	OpWait
	OpReceive
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpSend:
		return "send"
	case OpWait:
		return "wait"
	case OpReceive:
		return "receive"
	default:
		return "unknown"
	}
}

// FaultConfig configures fault injection behavior.
type FaultConfig struct {
	// Probability is the chance of fault injection (0.0 to 1.0).
	Probability float64

	// Type is the type of fault to inject.
	Type FaultType

	// Op is the operation the fault applies to.
	Op Op

	// MinDelay is the minimum delay to add for FaultDelay.
	MinDelay time.Duration

	// MaxDelay is the maximum delay to add for FaultDelay.
	MaxDelay time.Duration

	// Errno is attached to FaultError errors when non-zero.
	Errno syscall.Errno

	// Length is the number of bytes kept by FaultTruncate.
	Length int
}

// FaultInjector decides which faults fire.
type FaultInjector struct {
	configs   []FaultConfig
	enabled   bool
	mu        sync.RWMutex
	rng       *rand.Rand
	faultHits map[FaultType]int64
}

// NewFaultInjector creates a new fault injector.
func NewFaultInjector(configs ...FaultConfig) *FaultInjector {
	return &FaultInjector{
		configs:   configs,
		enabled:   true,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		faultHits: make(map[FaultType]int64),
	}
}

// Seed reseeds the random source so runs are reproducible.
func (f *FaultInjector) Seed(seed int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rng = rand.New(rand.NewSource(seed))
}

// Enable enables fault injection.
func (f *FaultInjector) Enable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
}

// Disable disables fault injection.
func (f *FaultInjector) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
}

// IsEnabled returns whether fault injection is enabled.
func (f *FaultInjector) IsEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

// MaybeInject returns the first fault configured for op whose dice roll
// hits. The boolean is false when nothing should be injected.
func (f *FaultInjector) MaybeInject(op Op) (FaultConfig, bool) {
	f.mu.RLock()
	if !f.enabled {
		f.mu.RUnlock()
		return FaultConfig{}, false
	}
	configs := f.configs
	f.mu.RUnlock()

	for _, config := range configs {
		if config.Op != op {
			continue
		}
		if f.shouldInject(config.Probability) {
			f.mu.Lock()
			f.faultHits[config.Type]++
			f.mu.Unlock()
			return config, true
		}
	}

	return FaultConfig{}, false
}

// Delay returns a random delay within the bounds of config.
func (f *FaultInjector) Delay(config FaultConfig) time.Duration {
	return f.randomDelay(config.MinDelay, config.MaxDelay)
}

// GetStats returns the fault injection statistics.
func (f *FaultInjector) GetStats() map[FaultType]int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make(map[FaultType]int64)
	for k, v := range f.faultHits {
		stats[k] = v
	}
	return stats
}

// Reset resets the fault injection statistics.
func (f *FaultInjector) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faultHits = make(map[FaultType]int64)
}

func (f *FaultInjector) shouldInject(probability float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < probability
}

func (f *FaultInjector) randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delta := max - min
	return min + time.Duration(f.rng.Int63n(int64(delta)))
}
