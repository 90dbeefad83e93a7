package browser

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neboloop/netcapture/internal/capture"
)

// DevTools events re-encoded into the performance log besides requestWillBeSent.
const (
	methodResponseReceived = "Network.responseReceived"
	methodLoadingFinished  = "Network.loadingFinished"
	methodLoadEventFired   = "Page.loadEventFired"
)

// perfLog turns browser events into performance-log entries and holds them until
// the next drain. Event callbacks run on the driver's listener goroutines.
type perfLog struct {
	mu      sync.Mutex
	enabled bool
	entries []capture.Entry
	dropped int
	limit   int
	now     func() time.Time
	logger  *slog.Logger
}

func newPerfLog(logger *slog.Logger) *perfLog {
	return &perfLog{
		limit:  maxQueuedEntries,
		now:    time.Now,
		logger: logger,
	}
}

func (l *perfLog) enable() {
	l.mu.Lock()
	l.enabled = true
	l.mu.Unlock()
}

// push queues one event. It is a no-op until enable.
func (l *perfLog) push(method string, params any, webview string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}

	entry, err := capture.NewEntry(method, params, webview, l.now())
	if err != nil {
		l.logger.Debug("dropping unencodable event", "method", method, "error", err)
		return
	}
	if len(l.entries) >= l.limit {
		l.entries = l.entries[1:]
		l.dropped++
	}
	l.entries = append(l.entries, entry)
}

func (l *perfLog) request(webview, requestID, url, method string, headers map[string]string) {
	l.push(capture.MethodRequestWillBeSent, capture.RequestParams(requestID, url, method, headers), webview)
}

func (l *perfLog) response(webview, requestID, url string, status int64, mimeType string) {
	l.push(methodResponseReceived, map[string]any{
		"requestId": requestID,
		"response": map[string]any{
			"url":      url,
			"status":   status,
			"mimeType": mimeType,
		},
	}, webview)
}

func (l *perfLog) finished(webview, requestID string, encodedLength float64) {
	l.push(methodLoadingFinished, map[string]any{
		"requestId":         requestID,
		"encodedDataLength": encodedLength,
	}, webview)
}

func (l *perfLog) loaded(webview string) {
	l.push(methodLoadEventFired, map[string]any{
		"timestamp": float64(l.now().UnixMilli()) / 1000,
	}, webview)
}

// drain hands over everything queued so far.
func (l *perfLog) drain() []capture.Entry {
	l.mu.Lock()
	out := l.entries
	dropped := l.dropped
	l.entries = nil
	l.dropped = 0
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.Warn("performance log overflowed, oldest entries dropped", "dropped", dropped, "limit", l.limit)
	}
	return out
}

// headerStrings flattens DevTools header values, which may be any JSON scalar.
func headerStrings(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}
