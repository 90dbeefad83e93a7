package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// TimestampLayout is used for audit blocks and persisted records.
const TimestampLayout = "2006-01-02 15:04:05"

var ruleLine = strings.Repeat("=", 80)

// AuditLog appends one human-readable block per decoded request to a plain-text
// file. The file and its directory are created on first write.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog returns an audit log at dir/<prefix>_<YYYYmmdd_HHMMSS>.txt.
func NewAuditLog(dir, prefix string, now time.Time) *AuditLog {
	name := fmt.Sprintf("%s_%s.txt", prefix, now.Format("20060102_150405"))
	return &AuditLog{path: filepath.Join(dir, name)}
}

// OpenAuditLog returns an audit log writing to path as given.
func OpenAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Path is where blocks are written.
func (l *AuditLog) Path() string {
	return l.path
}

// Record appends req as a block.
func (l *AuditLog) Record(req Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create audit log dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatBlock(req)); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// FormatBlock renders req as an audit block delimited by rule lines.
func FormatBlock(req Request) string {
	var sb strings.Builder
	sb.WriteString("\n" + ruleLine + "\n")
	fmt.Fprintf(&sb, "Timestamp: %s\n", req.ObservedAt.Format(TimestampLayout))
	fmt.Fprintf(&sb, "URL: %s\n", orNA(req.URL))
	fmt.Fprintf(&sb, "Method: %s\n", orNA(req.Method))
	sb.WriteString("Headers:\n")
	for _, k := range sortedKeys(req.Headers) {
		fmt.Fprintf(&sb, "%s: %s\n", k, req.Headers[k])
	}
	sb.WriteString(ruleLine + "\n")
	return sb.String()
}

// FlattenHeaders renders headers as newline-joined "key: value" pairs sorted by key.
func FlattenHeaders(headers map[string]string) string {
	lines := make([]string, 0, len(headers))
	for _, k := range sortedKeys(headers) {
		lines = append(lines, k+": "+headers[k])
	}
	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
