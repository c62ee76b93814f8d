package health

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/logging"
)

// ProbeResult is the JSON form of one probe outcome.
type ProbeResult struct {
	Address    string  `json:"address"`
	Status     string  `json:"status"`
	Identifier uint16  `json:"identifier"`
	Sequence   uint16  `json:"sequence"`
	Type       int     `json:"icmp_type,omitempty"`
	TypeName   string  `json:"type_name,omitempty"`
	Code       int     `json:"icmp_code,omitempty"`
	CodeName   string  `json:"code_name,omitempty"`
	Length     int     `json:"length,omitempty"`
	Source     string  `json:"source,omitempty"`
	RTTMillis  float64 `json:"rtt_ms,omitempty"`
	Matched    bool    `json:"matched"`
	Errno      int     `json:"errno,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NewProbeResult describes the outcome of probing address with the given
// identifier and sequence.
func NewProbeResult(address string, identifier, sequence uint16, reply *icmp.EchoReply, err error) ProbeResult {
	res := ProbeResult{
		Address:    address,
		Identifier: identifier,
		Sequence:   sequence,
	}

	if err != nil {
		res.Status = icmp.KindOf(err).String()
		res.Error = err.Error()
		var pe *icmp.ProbeError
		if errors.As(err, &pe) {
			res.Errno = int(pe.Errno)
			res.Length = pe.Length
		}
		return res
	}

	res.Status = "ok"
	res.Identifier = reply.Identifier
	res.Sequence = reply.Sequence
	res.Type = reply.Type
	res.TypeName = reply.TypeName()
	res.Code = reply.Code
	res.CodeName = reply.CodeName()
	res.Length = reply.Length
	res.RTTMillis = float64(reply.RTT.Microseconds()) / 1000
	res.Matched = reply.Matched
	if reply.Source.IsValid() {
		res.Source = reply.Source.String()
	}
	return res
}

// handleProbe runs one probe and returns the result as JSON.
// GET /probe?address=192.0.2.1&id=1&seq=1&timeout=1s
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.prober == nil {
		http.Error(w, "probing not available", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	address := q.Get("address")
	if address == "" {
		http.Error(w, "address is required", http.StatusBadRequest)
		return
	}

	id, err := parseUint16(q.Get("id"))
	if err != nil {
		http.Error(w, "invalid id: "+err.Error(), http.StatusBadRequest)
		return
	}
	seq, err := parseUint16(q.Get("seq"))
	if err != nil {
		http.Error(w, "invalid seq: "+err.Error(), http.StatusBadRequest)
		return
	}

	var timeout time.Duration
	if v := q.Get("timeout"); v != "" {
		timeout, err = time.ParseDuration(v)
		if err != nil {
			http.Error(w, "invalid timeout: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	reply, err := s.prober.Probe(r.Context(), address, id, seq, timeout)
	res := NewProbeResult(address, id, seq, reply, err)

	status := http.StatusOK
	switch {
	case errors.Is(err, icmp.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.Is(err, icmp.ErrTimeout):
		status = http.StatusGatewayTimeout
	case err != nil:
		status = http.StatusBadGateway
	}
	if err != nil {
		s.logger.Debug("probe request failed", logging.KeyAddress, address, logging.KeyError, err)
	}

	writeJSON(w, status, res)
}

func parseUint16(s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
