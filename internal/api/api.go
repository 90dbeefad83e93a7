// Package api is a read-only HTTP view of the SQLite record mirror, so other
// tools can pick up the latest captured headers.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/neboloop/netcapture/internal/httputil"
	"github.com/neboloop/netcapture/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Records is the read side of the record store.
type Records interface {
	List(ctx context.Context, opts store.ListOptions) ([]store.Record, error)
	Latest(ctx context.Context, account string) (*store.Record, error)
}

var _ Records = (*store.SQLiteStore)(nil)

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ListResponse struct {
	Records []store.Record `json:"records"`
	Count   int            `json:"count"`
}

// NewRouter mounts the records endpoints.
func NewRouter(records Records, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/records", listRecordsHandler(records, logger))
		r.Get("/records/latest", latestRecordHandler(records, logger))
	})
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func listRecordsHandler(records Records, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := httputil.QueryInt(r, "limit", defaultLimit)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		if limit <= 0 || limit > maxLimit {
			httputil.ErrorWithCode(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}

		recs, err := records.List(r.Context(), store.ListOptions{
			Account: httputil.QueryString(r, "account", ""),
			Limit:   limit,
		})
		if err != nil {
			logger.Error("list records failed", "error", err)
			httputil.InternalError(w, "")
			return
		}
		if recs == nil {
			recs = []store.Record{}
		}
		httputil.OkJSON(w, &ListResponse{Records: recs, Count: len(recs)})
	}
}

func latestRecordHandler(records Records, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := records.Latest(r.Context(), httputil.QueryString(r, "account", ""))
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "no records captured")
			return
		}
		if err != nil {
			logger.Error("latest record failed", "error", err)
			httputil.InternalError(w, "")
			return
		}
		httputil.OkJSON(w, rec)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
