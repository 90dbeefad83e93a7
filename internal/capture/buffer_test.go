package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/netcapture/internal/logging"
	"github.com/neboloop/netcapture/internal/poll"
)

// scriptedSource hands out one batch per Drain call, then nothing.
type scriptedSource struct {
	batches [][]Entry
	errs    []error
	calls   int
}

func (s *scriptedSource) Drain(context.Context) ([]Entry, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.batches) {
		return s.batches[i], nil
	}
	return nil, nil
}

type failingRecorder struct{ calls int }

func (r *failingRecorder) Record(Request) error {
	r.calls++
	return errors.New("disk full")
}

const target = "https://nam.loki.delve.office.com/api/v2/linkedin/profiles/full"

func TestPollForMatchFirstOfFive(t *testing.T) {
	dir := t.TempDir()
	audit := OpenAuditLog(filepath.Join(dir, "audit.txt"))

	noise, err := NewEntry("Network.responseReceived", map[string]any{"requestId": "9"}, "", time.Now())
	require.NoError(t, err)

	src := &scriptedSource{batches: [][]Entry{{
		requestEntry(t, "https://outlook.office.com/people/", "GET", nil),
		noise,
		requestEntry(t, "https://outlook.office.com/owa/startupdata.ashx", "POST", nil),
		requestEntry(t, target+"/abc", "GET", map[string]string{"Authorization": "Bearer tok"}),
		{Message: "not json"},
		requestEntry(t, "https://res.cdn.office.net/x.js", "GET", nil),
		requestEntry(t, target+"/def", "GET", nil),
	}}}

	buf := NewBuffer(src, audit, logging.Discard())
	req, err := buf.PollForMatch(context.Background(), target, poll.Options{Timeout: 5 * time.Second, Interval: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, target+"/abc", req.URL)
	assert.Equal(t, "Bearer tok", req.Headers["Authorization"])

	data, err := os.ReadFile(audit.Path())
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(data), "\nURL: "))
	assert.Equal(t, 5, buf.Len())
}

func TestPollForMatchAcrossBatches(t *testing.T) {
	src := &scriptedSource{batches: [][]Entry{
		{requestEntry(t, "https://a/1", "GET", nil)},
		nil,
		{requestEntry(t, "https://a/2", "GET", nil), requestEntry(t, target+"/late", "GET", nil)},
	}}

	buf := NewBuffer(src, nil, logging.Discard())
	req, err := buf.PollForMatch(context.Background(), target, poll.Options{Timeout: time.Second, Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, target+"/late", req.URL)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 3, buf.Len())
}

func TestPollForMatchSeesEarlierCollectInWindow(t *testing.T) {
	src := &scriptedSource{batches: [][]Entry{
		{requestEntry(t, target+"/early", "GET", nil)},
		{requestEntry(t, target+"/later", "GET", nil)},
	}}
	buf := NewBuffer(src, nil, logging.Discard())

	fresh, err := buf.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	req, err := buf.PollForMatch(context.Background(), target, poll.Options{Timeout: time.Second, Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, target+"/early", req.URL)
}

func TestPollForMatchTimeout(t *testing.T) {
	src := &scriptedSource{batches: [][]Entry{
		{requestEntry(t, "https://a/1", "GET", nil)},
		{requestEntry(t, "https://a/2", "GET", nil)},
	}}
	buf := NewBuffer(src, nil, logging.Discard())

	start := time.Now()
	req, err := buf.PollForMatch(context.Background(), target, poll.Options{Timeout: time.Second, Interval: 500 * time.Millisecond})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, req)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 1500*time.Millisecond)
	assert.Equal(t, 2, buf.Len())
}

func TestPollForMatchSurvivesDrainErrorsAndAuditFailures(t *testing.T) {
	src := &scriptedSource{
		errs:    []error{errors.New("websocket closed"), nil},
		batches: [][]Entry{nil, {requestEntry(t, "https://a/1", "GET", nil), requestEntry(t, target+"/x", "GET", nil)}},
	}
	rec := &failingRecorder{}
	buf := NewBuffer(src, rec, logging.Discard())

	req, err := buf.PollForMatch(context.Background(), target, poll.Options{Timeout: time.Second, Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, 2, rec.calls)
}

func TestPollForMatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := NewBuffer(&scriptedSource{}, nil, logging.Discard())
	req, err := buf.PollForMatch(ctx, target, poll.Options{Timeout: time.Second, Interval: 5 * time.Millisecond})
	assert.Nil(t, req)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResetStartsNewWindow(t *testing.T) {
	src := &scriptedSource{batches: [][]Entry{
		{requestEntry(t, target+"/old", "GET", nil)},
		{requestEntry(t, target+"/new", "GET", nil)},
	}}
	buf := NewBuffer(src, nil, logging.Discard())

	_, err := buf.Collect(context.Background())
	require.NoError(t, err)
	buf.Reset()
	assert.Zero(t, buf.Len())

	req, err := buf.PollForMatch(context.Background(), target, poll.Options{Timeout: time.Second, Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, target+"/new", req.URL)
}

func TestFirstMatch(t *testing.T) {
	reqs := []Request{{URL: "https://a"}, {URL: "https://b/linkedin/profiles/full/1"}, {URL: "https://c/linkedin/profiles/full/2"}}
	m := FirstMatch(reqs, "linkedin/profiles/full")
	require.NotNil(t, m)
	assert.Equal(t, "https://b/linkedin/profiles/full/1", m.URL)
	assert.Nil(t, FirstMatch(reqs, "nope"))
	assert.Nil(t, FirstMatch(nil, "x"))
}
