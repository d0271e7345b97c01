// Package ratelog throttles repeated warning/error log lines to at most
// once per second per (key, kind) pair, so a tight hot-path loop hitting the
// same failure every tick cannot flood the log (spec.md §7: "The manager
// logs at most once per (key, error-kind) per second to avoid log storms
// from tight loops"). Modeled on the interval-gated send bookkeeping in
// src/fx25_send.go, repurposed from packet retransmission timing to log
// throttling.
package ratelog

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

type bucketKey struct {
	key  string
	kind string
}

// Logger wraps a *log.Logger, gating Warn/Error calls per (key, kind).
type Logger struct {
	mu       sync.Mutex
	inner    *log.Logger
	interval time.Duration
	last     map[bucketKey]time.Time
	now      func() time.Time

	traceFormat string
}

// New wraps inner with a one-second throttle window. Pass nil to use the
// package default logger.
func New(inner *log.Logger) *Logger {
	if inner == nil {
		inner = log.Default()
	}
	return &Logger{
		inner:    inner,
		interval: time.Second,
		last:     make(map[bucketKey]time.Time),
		now:      time.Now,
	}
}

func (l *Logger) allow(key, kind string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	bk := bucketKey{key, kind}
	now := l.now()
	if last, ok := l.last[bk]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[bk] = now
	return true
}

// Warn logs at most once per (key, kind) per second.
func (l *Logger) Warn(key, kind, msg string, kv ...any) {
	if !l.allow(key, kind) {
		return
	}
	l.inner.Warn(msg, append([]any{"key", key, "kind", kind}, kv...)...)
}

// Error logs at most once per (key, kind) per second.
func (l *Logger) Error(key, kind, msg string, kv ...any) {
	if !l.allow(key, kind) {
		return
	}
	l.inner.Error(msg, append([]any{"key", key, "kind", kind}, kv...)...)
}

// SetTraceTimestampFormat sets the strftime pattern used to prefix Trace
// lines, the same per-line timestamp src/tq.go and src/xmit.go prepend to
// transmitted-frame trace output when a format string was configured on the
// command line. An empty format disables the prefix.
func (l *Logger) SetTraceTimestampFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.traceFormat = format
}

// Trace logs one render-tick line, unthrottled, optionally prefixed with the
// strftime-formatted current time when SetTraceTimestampFormat configured
// one. Lines go out at Debug level. Used for the primary/offload timer's
// per-tick trace (one line per frame), which the once-per-second Warn/Error
// throttle does not gate.
func (l *Logger) Trace(msg string, kv ...any) {
	l.mu.Lock()
	format := l.traceFormat
	l.mu.Unlock()

	if format == "" {
		l.inner.Debug(msg, kv...)
		return
	}
	formatted, err := strftime.Format(format, l.now())
	if err != nil {
		l.inner.Debug(msg, kv...)
		return
	}
	l.inner.Debug(fmt.Sprintf("%s %s", formatted, msg), kv...)
}
