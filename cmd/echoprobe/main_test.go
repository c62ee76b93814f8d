package main

import (
	"bytes"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/postalsys/echoprobe/internal/health"
	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/metrics"
	"github.com/postalsys/echoprobe/internal/rawsock"
)

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echoprobe.yaml")
	if err := os.WriteFile(path, []byte("probe:\n  mode: raw\nlogging:\n  level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(&globalOptions{configPath: path})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Probe.Mode != "raw" || cfg.Logging.Level != "warn" {
		t.Errorf("file values not applied: %+v %+v", cfg.Probe, cfg.Logging)
	}

	cfg, err = loadConfig(&globalOptions{configPath: path, mode: "packetconn", logLevel: "debug", privileged: true})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Probe.Mode != "packetconn" || cfg.Logging.Level != "debug" || !cfg.Probe.Privileged {
		t.Errorf("flag overrides not applied: %+v %+v", cfg.Probe, cfg.Logging)
	}
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	if _, err := loadConfig(&globalOptions{mode: "tcp"}); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := loadConfig(&globalOptions{configPath: "/nonexistent/echoprobe.yaml"}); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestNewApp(t *testing.T) {
	a, err := newApp(&globalOptions{mode: "packetconn"})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if _, ok := a.transport.(*rawsock.PacketConnTransport); !ok {
		t.Errorf("transport = %T, want *rawsock.PacketConnTransport", a.transport)
	}
	if a.prober.Config().Timeout != 3*time.Second {
		t.Errorf("prober timeout = %v, want 3s", a.prober.Config().Timeout)
	}
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(os.Stdout, false)
	p.w = &buf

	p.result("192.0.2.1", 1, 1, &icmp.EchoReply{
		Family:     rawsock.IPv4,
		Type:       icmp.TypeEchoReplyV4,
		Identifier: 1,
		Sequence:   1,
		Length:     13,
		Source:     netip.MustParseAddr("192.0.2.1"),
		RTT:        1234 * time.Microsecond,
		Matched:    true,
	}, nil)
	p.result("192.0.2.1", 1, 2, &icmp.EchoReply{
		Family:   rawsock.IPv4,
		Type:     3,
		Code:     1,
		Sequence: 2,
		Source:   netip.MustParseAddr("198.51.100.1"),
	}, nil)
	p.result("192.0.2.1", 1, 3, nil, &icmp.ProbeError{Kind: icmp.KindTimeout, Address: "192.0.2.1"})

	out := buf.String()
	for _, want := range []string{
		"13 B from 192.0.2.1: icmp_seq=1 id=1 time=1.234 ms",
		"From 198.51.100.1 icmp_seq=2 destination unreachable (host unreachable)",
		"icmp_seq=3: probe 192.0.2.1: timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_Summary(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(os.Stdout, false)
	p.w = &buf

	p.summary("::1", icmp.Snapshot{
		Sent:     1200,
		Received: 1197,
		Failures: map[string]int{"timeout": 3},
		MinRTT:   time.Millisecond,
		AvgRTT:   2 * time.Millisecond,
		MaxRTT:   3 * time.Millisecond,
		LossPct:  0.25,
	})

	out := buf.String()
	for _, want := range []string{
		"--- ::1 echoprobe statistics ---",
		"1,200 sent, 1,197 received, 0.2% loss",
		"rtt min/avg/max = 1.000 ms/2.000 ms/3.000 ms",
		"timeout: 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(os.Stdout, true)
	p.w = &buf

	p.result("::1", 5, 6, nil, &icmp.ProbeError{Kind: icmp.KindShortPacket, Address: "::1", Length: 3})

	out := buf.String()
	if !strings.Contains(out, `"status":"short_packet"`) || !strings.Contains(out, `"length":3`) {
		t.Errorf("unexpected JSON %s", out)
	}
}

func TestDumpMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)
	m.RecordProbe("ipv6", metrics.ResultSuccess)

	var buf bytes.Buffer
	if err := dumpMetrics(&buf, reg); err != nil {
		t.Fatalf("dumpMetrics() error = %v", err)
	}
	if !strings.Contains(buf.String(), `echoprobe_probes_total{family="ipv6",result="success"} 1`) {
		t.Errorf("metrics dump missing counter:\n%s", buf.String())
	}
}

func TestExitError(t *testing.T) {
	var err error = &exitError{code: 3}
	var exitErr *exitError
	if !errors.As(err, &exitErr) || exitErr.code != 3 {
		t.Errorf("errors.As failed for %v", err)
	}
}

func TestWatcher_Record(t *testing.T) {
	w := newWatcher("192.0.2.1")
	w.record(7, icmp.Result{Sequence: 1, Reply: &icmp.EchoReply{
		Family:     rawsock.IPv4,
		Type:       icmp.TypeEchoReplyV4,
		Identifier: 7,
		Sequence:   1,
		Length:     13,
		RTT:        time.Millisecond,
		Matched:    true,
	}})
	w.record(7, icmp.Result{Sequence: 2, Err: &icmp.ProbeError{Kind: icmp.KindTimeout, Address: "192.0.2.1"}})

	if w.Target() != "192.0.2.1" {
		t.Errorf("Target() = %q", w.Target())
	}
	snap := w.Stats()
	if snap.Sent != 2 || snap.Received != 1 {
		t.Errorf("stats = %+v", snap)
	}
	recent := w.Recent()
	if len(recent) != 2 {
		t.Fatalf("recent = %d results, want 2", len(recent))
	}
	if recent[0].Status != "ok" || recent[1].Status != "timeout" {
		t.Errorf("statuses = %q, %q", recent[0].Status, recent[1].Status)
	}
}

func TestPrinter_Stored(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(os.Stdout, false)
	p.w = &buf

	p.stored(health.ProbeResult{
		Address:    "192.0.2.1",
		Status:     "ok",
		Identifier: 1,
		Sequence:   4,
		Length:     13,
		Source:     "192.0.2.1",
		RTTMillis:  0.5,
		Matched:    true,
	})
	p.stored(health.ProbeResult{
		Address:  "192.0.2.1",
		Status:   "timeout",
		Sequence: 5,
		Error:    "probe 192.0.2.1: timeout",
	})

	out := buf.String()
	for _, want := range []string{
		"13 B from 192.0.2.1: icmp_seq=4 id=1 time=0.500 ms",
		"icmp_seq=5: probe 192.0.2.1: timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
