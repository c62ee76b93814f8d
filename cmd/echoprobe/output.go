package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/term"

	"github.com/postalsys/echoprobe/internal/health"
	"github.com/postalsys/echoprobe/internal/icmp"
)

// printer renders probe results for humans or as JSON lines.
type printer struct {
	w    io.Writer
	json bool

	ok   lipgloss.Style
	warn lipgloss.Style
	fail lipgloss.Style
	dim  lipgloss.Style
	bold lipgloss.Style
}

func newPrinter(f *os.File, asJSON bool) *printer {
	p := &printer{
		w:    f,
		json: asJSON,
		ok:   lipgloss.NewStyle(),
		warn: lipgloss.NewStyle(),
		fail: lipgloss.NewStyle(),
		dim:  lipgloss.NewStyle(),
		bold: lipgloss.NewStyle(),
	}

	if !asJSON && term.IsTerminal(int(f.Fd())) {
		p.ok = p.ok.Foreground(lipgloss.Color("42"))
		p.warn = p.warn.Foreground(lipgloss.Color("214"))
		p.fail = p.fail.Foreground(lipgloss.Color("196"))
		p.dim = p.dim.Foreground(lipgloss.Color("241"))
		p.bold = p.bold.Bold(true)
	}
	return p
}

// result prints one probe outcome.
func (p *printer) result(address string, identifier, sequence uint16, reply *icmp.EchoReply, err error) {
	if p.json {
		p.encode(health.NewProbeResult(address, identifier, sequence, reply, err))
		return
	}

	switch {
	case err != nil:
		fmt.Fprintf(p.w, "%s icmp_seq=%d: %s\n",
			p.dim.Render(address), sequence, p.fail.Render(err.Error()))
	case !reply.IsEchoReply():
		desc := reply.TypeName()
		if name := reply.CodeName(); name != "" {
			desc += " (" + name + ")"
		}
		fmt.Fprintf(p.w, "From %s icmp_seq=%d %s\n",
			reply.Source, reply.Sequence, p.warn.Render(desc))
	case !reply.Matched:
		fmt.Fprintf(p.w, "%s from %s: icmp_seq=%d id=%d %s\n",
			humanize.Bytes(uint64(reply.Length)), reply.Source, reply.Sequence, reply.Identifier,
			p.warn.Render("(unmatched)"))
	default:
		fmt.Fprintf(p.w, "%s from %s: icmp_seq=%d id=%d time=%s\n",
			humanize.Bytes(uint64(reply.Length)), reply.Source, reply.Sequence, reply.Identifier,
			p.ok.Render(formatRTT(reply.RTT)))
	}
}

// summary prints series statistics.
// stored prints a result kept by a watch process.
func (p *printer) stored(r health.ProbeResult) {
	if p.json {
		p.encode(r)
		return
	}

	switch {
	case r.Error != "":
		fmt.Fprintf(p.w, "%s icmp_seq=%d: %s\n",
			p.dim.Render(r.Address), r.Sequence, p.fail.Render(r.Error))
	case !r.Matched:
		desc := r.TypeName
		if r.CodeName != "" {
			desc += " (" + r.CodeName + ")"
		}
		fmt.Fprintf(p.w, "From %s icmp_seq=%d %s\n", r.Source, r.Sequence, p.warn.Render(desc))
	default:
		fmt.Fprintf(p.w, "%s from %s: icmp_seq=%d id=%d time=%s\n",
			humanize.Bytes(uint64(r.Length)), r.Source, r.Sequence, r.Identifier,
			p.ok.Render(fmt.Sprintf("%.3f ms", r.RTTMillis)))
	}
}

func (p *printer) summary(address string, snap icmp.Snapshot) {
	if p.json {
		p.encode(struct {
			Type    string        `json:"type"`
			Address string        `json:"address"`
			Stats   icmp.Snapshot `json:"stats"`
		}{"summary", address, snap})
		return
	}

	lossStyle := p.ok
	switch {
	case snap.Sent > 0 && snap.Received == 0:
		lossStyle = p.fail
	case snap.LossPct > 0:
		lossStyle = p.warn
	}

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.bold.Render(fmt.Sprintf("--- %s echoprobe statistics ---", address)))
	fmt.Fprintf(p.w, "%s sent, %s received, %s loss",
		humanize.Comma(int64(snap.Sent)),
		humanize.Comma(int64(snap.Received)),
		lossStyle.Render(fmt.Sprintf("%.1f%%", snap.LossPct)))
	if snap.Unexpected > 0 {
		fmt.Fprintf(p.w, ", %s other", humanize.Comma(int64(snap.Unexpected)))
	}
	fmt.Fprintln(p.w)

	if snap.Received > 0 {
		fmt.Fprintf(p.w, "rtt min/avg/max = %s/%s/%s\n",
			formatRTT(snap.MinRTT), formatRTT(snap.AvgRTT), formatRTT(snap.MaxRTT))
	}
	for kind, n := range snap.Failures {
		fmt.Fprintf(p.w, "%s %s\n", p.dim.Render(kind+":"), humanize.Comma(int64(n)))
	}
}

func (p *printer) encode(v any) {
	enc := json.NewEncoder(p.w)
	enc.Encode(v)
}

func formatRTT(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d.Microseconds())/1000)
}

// dumpMetrics writes the registry in the Prometheus text format.
func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return nil
}
