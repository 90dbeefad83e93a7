package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/neboloop/netcapture/internal/capture"
	"github.com/neboloop/netcapture/internal/failure"
)

// CSVHeader is written once, when the file is first created.
var CSVHeader = []string{"Timestamp", "Email", "URL", "Headers"}

// CSVStore appends records to a CSV file.
type CSVStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewCSVStore returns a store at path. Nothing is touched until the first Append.
func NewCSVStore(path string, logger *slog.Logger) *CSVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVStore{
		path:   path,
		logger: logger.With("component", "csv-store"),
	}
}

// Path is the CSV file location.
func (s *CSVStore) Path() string {
	return s.path
}

// Append writes one row. If the write fails, the parent directory is created and
// the write is retried exactly once.
func (s *CSVStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.write(rec)
	if err == nil {
		s.logSaved(rec)
		return nil
	}
	s.logger.Warn("csv write failed, creating directory and retrying", "path", s.path, "error", err)

	if dir := filepath.Dir(s.path); dir != "" {
		if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
			return failure.New(failure.Persistence, "create record directory", mkErr)
		}
	}
	if err := s.write(rec); err != nil {
		return failure.New(failure.Persistence, "append record", err)
	}
	s.logSaved(rec)
	return nil
}

func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) write(rec Record) error {
	fresh := true
	if info, err := os.Stat(s.path); err == nil && info.Size() > 0 {
		fresh = false
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(CSVHeader); err != nil {
			return err
		}
	}
	if err := w.Write([]string{
		rec.Timestamp.Format(capture.TimestampLayout),
		rec.Account,
		rec.URL,
		capture.FlattenHeaders(rec.Headers),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (s *CSVStore) logSaved(rec Record) {
	s.logger.Info("record saved",
		"file", s.path,
		"timestamp", rec.Timestamp.Format(capture.TimestampLayout),
		"account", rec.Account,
		"url", rec.URL,
	)
}

// ReadCSV loads every record from a CSV store file. A missing file yields no records.
func ReadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(CSVHeader)

	var out []Record
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if first {
			first = false
			if row[0] == CSVHeader[0] {
				continue
			}
		}

		ts, err := time.ParseInLocation(capture.TimestampLayout, row[0], time.Local)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", row[0], err)
		}
		out = append(out, Record{
			Timestamp: ts,
			Account:   row[1],
			URL:       row[2],
			Headers:   parseHeaders(row[3]),
		})
	}
	return out, nil
}

func parseHeaders(flat string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(flat, "\n") {
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		headers[k] = v
	}
	return headers
}
