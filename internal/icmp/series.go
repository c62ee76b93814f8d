package icmp

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval separates probes in a series.
const DefaultInterval = time.Second

// SeriesOptions configures Series.
type SeriesOptions struct {
	// Count is the number of probes to send. 0 runs until ctx is done.
	Count int

	// Interval is the minimum spacing between probe starts.
	Interval time.Duration

	// Identifier is sent with every probe.
	Identifier uint16

	// StartSequence is the sequence of the first probe; it increments
	// (wrapping) for each following probe.
	StartSequence uint16

	// Timeout bounds each probe. Non-positive uses the prober default.
	Timeout time.Duration
}

// Result is the outcome of one probe in a series.
type Result struct {
	Sequence uint16
	Reply    *EchoReply
	Err      error
}

// Series probes address repeatedly, each time with a fresh sequence number,
// and calls fn with every result. It returns the accumulated statistics when
// Count probes have been sent or ctx is done. Only an invalid address is
// returned as an error; individual probe failures are reported through fn.
func (p *Prober) Series(ctx context.Context, address string, opts SeriesOptions, fn func(Result)) (*Stats, error) {
	stats := NewStats()

	if _, err := ParseAddress(address); err != nil {
		return stats, err
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	seq := opts.StartSequence
	for sent := 0; opts.Count == 0 || sent < opts.Count; sent++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		reply, err := p.Probe(ctx, address, opts.Identifier, seq, opts.Timeout)
		if errors.Is(err, ErrCanceled) {
			break
		}
		stats.Add(reply, err)
		if fn != nil {
			fn(Result{Sequence: seq, Reply: reply, Err: err})
		}
		seq++
	}

	return stats, nil
}
