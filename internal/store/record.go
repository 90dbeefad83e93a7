// Package store persists matched requests. The CSV file is the authoritative,
// append-only record store; SQLite is an optional queryable mirror.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/neboloop/netcapture/internal/capture"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("record not found")

// Record is one persisted match.
type Record struct {
	RunID     string            `json:"run_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Account   string            `json:"account"`
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers"`
}

// FromRequest builds the record for a matched request.
func FromRequest(runID, account string, req capture.Request, at time.Time) Record {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}
	return Record{
		RunID:     runID,
		Timestamp: at,
		Account:   account,
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
	}
}

// Store appends records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// Tee writes to a primary store and then to mirrors. Only the primary's error is
// returned; mirror failures are logged.
type Tee struct {
	primary Store
	mirrors []Store
	logger  *slog.Logger
}

// NewTee returns a store fanning out to primary and mirrors.
func NewTee(logger *slog.Logger, primary Store, mirrors ...Store) *Tee {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tee{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With("component", "store"),
	}
}

func (t *Tee) Append(ctx context.Context, rec Record) error {
	if err := t.primary.Append(ctx, rec); err != nil {
		return err
	}
	for _, m := range t.mirrors {
		if err := m.Append(ctx, rec); err != nil {
			t.logger.Warn("mirror append failed", "url", rec.URL, "error", err)
		}
	}
	return nil
}

func (t *Tee) Close() error {
	errs := []error{t.primary.Close()}
	for _, m := range t.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
