package icmp

import (
	"sync"
	"time"
)

// Stats accumulates the outcome of a probe series.
type Stats struct {
	mu sync.Mutex

	sent       int
	received   int
	unexpected int
	failures   map[ErrorKind]int

	minRTT   time.Duration
	maxRTT   time.Duration
	totalRTT time.Duration
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{failures: make(map[ErrorKind]int)}
}

// Add records one probe result. Only matched echo replies count as received.
func (s *Stats) Add(reply *EchoReply, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent++
	switch {
	case err != nil:
		s.failures[KindOf(err)]++
	case reply == nil:
	case !reply.IsEchoReply() || !reply.Matched:
		s.unexpected++
	default:
		s.received++
		s.totalRTT += reply.RTT
		if s.received == 1 || reply.RTT < s.minRTT {
			s.minRTT = reply.RTT
		}
		if reply.RTT > s.maxRTT {
			s.maxRTT = reply.RTT
		}
	}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Sent       int            `json:"sent"`
	Received   int            `json:"received"`
	Unexpected int            `json:"unexpected"`
	Failures   map[string]int `json:"failures,omitempty"`
	MinRTT     time.Duration  `json:"min_rtt"`
	AvgRTT     time.Duration  `json:"avg_rtt"`
	MaxRTT     time.Duration  `json:"max_rtt"`
	LossPct    float64        `json:"loss_percent"`
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Sent:       s.sent,
		Received:   s.received,
		Unexpected: s.unexpected,
		MinRTT:     s.minRTT,
		MaxRTT:     s.maxRTT,
	}
	if len(s.failures) > 0 {
		snap.Failures = make(map[string]int, len(s.failures))
		for kind, n := range s.failures {
			snap.Failures[kind.String()] = n
		}
	}
	if s.received > 0 {
		snap.AvgRTT = s.totalRTT / time.Duration(s.received)
	}
	if s.sent > 0 {
		snap.LossPct = float64(s.sent-s.received) / float64(s.sent) * 100
	}
	return snap
}
