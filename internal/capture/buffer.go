package capture

import (
	"context"
	"log/slog"
	"strings"

	"github.com/neboloop/netcapture/internal/poll"
)

// Source is a pull-only feed of performance-log entries. Drain returns everything
// buffered since the previous call and must not block waiting for new entries.
type Source interface {
	Drain(ctx context.Context) ([]Entry, error)
}

// Recorder receives every decoded request. Errors are logged and ignored.
type Recorder interface {
	Record(req Request) error
}

// Buffer holds the requests decoded during one capture window.
type Buffer struct {
	source Source
	audit  Recorder
	logger *slog.Logger

	requests []Request
}

// NewBuffer creates a buffer over source. audit may be nil.
func NewBuffer(source Source, audit Recorder, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		source: source,
		audit:  audit,
		logger: logger.With("component", "capture"),
	}
}

// Reset starts a new capture window.
func (b *Buffer) Reset() {
	b.requests = nil
}

// Requests returns the requests decoded in the current window, in emission order.
func (b *Buffer) Requests() []Request {
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Len is the number of requests decoded in the current window.
func (b *Buffer) Len() int {
	return len(b.requests)
}

// Collect drains the source once and decodes every entry. Undecodable entries are
// skipped. Each decoded request is appended to the window and sent to the audit
// recorder. It returns only the requests decoded by this call.
func (b *Buffer) Collect(ctx context.Context) ([]Request, error) {
	entries, err := b.source.Drain(ctx)
	if err != nil {
		return nil, err
	}

	var fresh []Request
	for _, e := range entries {
		req, ok := Decode(e)
		if !ok {
			continue
		}
		b.requests = append(b.requests, *req)
		fresh = append(fresh, *req)
		b.record(*req)
	}
	return fresh, nil
}

// PollForMatch collects until a request whose URL contains target has been decoded
// in the current window, and returns the earliest such request. A closed window
// without a match returns (nil, nil). Drain errors are logged and polling goes on.
func (b *Buffer) PollForMatch(ctx context.Context, target string, opts poll.Options) (*Request, error) {
	var match *Request

	_, err := poll.Until(ctx, opts, func(ctx context.Context) (bool, error) {
		if _, err := b.Collect(ctx); err != nil {
			b.logger.Warn("performance log drain failed", "error", err)
			return false, nil
		}
		match = FirstMatch(b.requests, target)
		return match != nil, nil
	})
	if err != nil {
		return nil, err
	}

	if match != nil {
		b.logger.Info("request matched", "target", target, "url", match.URL, "method", match.Method)
	} else {
		b.logger.Info("no request matched", "target", target, "decoded", len(b.requests))
	}
	return match, nil
}

// FirstMatch returns a copy of the first request whose URL contains target.
func FirstMatch(reqs []Request, target string) *Request {
	for i := range reqs {
		if strings.Contains(reqs[i].URL, target) {
			m := reqs[i]
			return &m
		}
	}
	return nil
}

func (b *Buffer) record(req Request) {
	if b.audit == nil {
		return
	}
	if err := b.audit.Record(req); err != nil {
		b.logger.Warn("audit log write failed", "url", req.URL, "error", err)
	}
}
