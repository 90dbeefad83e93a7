package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditLogPath(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 30, 5, 0, time.Local)
	l := NewAuditLog("/var/log/netcapture", "network_logs", at)
	assert.Equal(t, "/var/log/netcapture/network_logs_20261019_083005.txt", l.Path())
}

func TestAuditLogCreatesDirAndAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	l := OpenAuditLog(filepath.Join(dir, "audit.txt"))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	require.NoError(t, l.Record(Request{URL: "https://a", Method: "GET", Headers: map[string]string{"b": "2", "a": "1"}, ObservedAt: at}))
	require.NoError(t, l.Record(Request{URL: "https://b", ObservedAt: at}))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	text := string(data)

	assert.Equal(t, 4, strings.Count(text, strings.Repeat("=", 80)))
	assert.Contains(t, text, "Timestamp: 2026-01-02 03:04:05\nURL: https://a\nMethod: GET\nHeaders:\na: 1\nb: 2\n")
	assert.Contains(t, text, "URL: https://b\nMethod: N/A\n")
}

func TestAuditLogWriteFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	l := OpenAuditLog(filepath.Join(blocker, "audit.txt"))
	assert.Error(t, l.Record(Request{URL: "https://a"}))
}

func TestFlattenHeaders(t *testing.T) {
	assert.Equal(t, "Accept: */*\nAuthorization: Bearer x", FlattenHeaders(map[string]string{
		"Authorization": "Bearer x",
		"Accept":        "*/*",
	}))
	assert.Equal(t, "", FlattenHeaders(nil))
}
