// Package main builds echoprobe as a C shared library.
//
//	go build -buildmode=c-shared -o libechoprobe.so ./cmd/echoprobe-cshared
//
// Exported functions:
//
//	int  echoprobe_ping(const char *address, int count);
//	int  echoprobe_probe(const char *address, int identifier, int sequence,
//	                     int timeout_ms, echoprobe_reply *out);
//	void echoprobe_set_log_sink(echoprobe_log_fn fn, int min_level);
//
// echoprobe_ping returns 0 when at least one echo reply arrived and 1
// otherwise. echoprobe_probe returns 0 on success and a per-failure status
// code otherwise. The configuration is read once from the file named by
// ECHOPROBE_CONFIG, if set.
package main

/*
#include <stdlib.h>
#include "echoprobe.h"
*/
import "C"

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/postalsys/echoprobe/internal/bridge"
	"github.com/postalsys/echoprobe/internal/config"
	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/logging"
	"github.com/postalsys/echoprobe/internal/metrics"
	"github.com/postalsys/echoprobe/internal/rawsock"
	"github.com/postalsys/echoprobe/internal/recovery"
)

var (
	mu       sync.RWMutex
	logFn    C.echoprobe_log_fn
	logLevel = new(slog.LevelVar)

	initOnce sync.Once
	current  *bridge.Bridge
)

// hostLevel maps slog levels onto ECHOPROBE_LOG_*.
func hostLevel(level slog.Level) C.int {
	switch {
	case level >= slog.LevelError:
		return C.ECHOPROBE_LOG_ERROR
	case level >= slog.LevelWarn:
		return C.ECHOPROBE_LOG_WARN
	case level >= slog.LevelInfo:
		return C.ECHOPROBE_LOG_INFO
	default:
		return C.ECHOPROBE_LOG_DEBUG
	}
}

func slogLevel(level C.int) slog.Level {
	switch level {
	case C.ECHOPROBE_LOG_DEBUG:
		return slog.LevelDebug
	case C.ECHOPROBE_LOG_WARN:
		return slog.LevelWarn
	case C.ECHOPROBE_LOG_ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// sink forwards one formatted log line to the installed host callback.
func sink(level slog.Level, line string) {
	mu.RLock()
	fn := logFn
	mu.RUnlock()
	if fn == nil {
		return
	}

	cline := C.CString(line)
	defer C.free(unsafe.Pointer(cline))
	C.echoprobe_call_log(fn, hostLevel(level), cline)
}

// instance builds the shared bridge on first use.
func instance() *bridge.Bridge {
	initOnce.Do(func() {
		logger := slog.New(logging.NewSinkHandler(sink, logLevel))

		cfg := config.Default()
		if path := os.Getenv("ECHOPROBE_CONFIG"); path != "" {
			loaded, err := config.Load(path)
			if err != nil {
				logger.Error("config load failed, using defaults", logging.KeyError, err)
			} else {
				cfg = loaded
			}
		}

		topts := cfg.TransportOptions()
		topts.Logger = logger
		prober := icmp.NewProber(rawsock.New(topts), cfg.ProberConfig(), logger)
		prober.SetMetrics(metrics.Default())

		current = bridge.New(prober, logger)
	})
	return current
}

//export echoprobe_set_log_sink
func echoprobe_set_log_sink(fn C.echoprobe_log_fn, minLevel C.int) {
	mu.Lock()
	logFn = fn
	mu.Unlock()
	logLevel.Set(slogLevel(minLevel))
}

//export echoprobe_ping
func echoprobe_ping(address *C.char, count C.int) (rc C.int) {
	rc = bridge.ExitFailure
	if address == nil {
		return rc
	}
	defer recovery.RecoverWithLog(nil, "echoprobe_ping")

	return C.int(instance().Ping(context.Background(), C.GoString(address), int(count)))
}

//export echoprobe_probe
func echoprobe_probe(address *C.char, identifier, sequence, timeoutMS C.int, out *C.echoprobe_reply) (rc C.int) {
	rc = bridge.StatusInternal
	if address == nil || out == nil {
		return bridge.StatusInvalidArgument
	}
	defer recovery.RecoverWithLog(nil, "echoprobe_probe")

	status, reply := instance().Probe(context.Background(), C.GoString(address),
		int(identifier), int(sequence), int(timeoutMS))

	*out = C.echoprobe_reply{
		_type:      C.int(reply.Type),
		code:       C.int(reply.Code),
		identifier: C.int(reply.Identifier),
		sequence:   C.int(reply.Sequence),
		length:     C.int(reply.Length),
		rtt_us:     C.int64_t(reply.RTTMicros),
		err_no:     C.int(reply.Errno),
	}
	if reply.Matched {
		out.matched = 1
	}

	return C.int(status)
}

// main is required for c-shared buildmode but is never called.
func main() {}
