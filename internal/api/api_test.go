package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/netcapture/internal/httputil"
	"github.com/neboloop/netcapture/internal/logging"
	"github.com/neboloop/netcapture/internal/store"
)

func seededStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "records.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, acct := range []string{"a@example.com", "b@example.com", "a@example.com"} {
		require.NoError(t, st.Append(context.Background(), store.Record{
			RunID:     "run",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Account:   acct,
			URL:       "https://example.com/linkedin/profiles/full?n=" + string(rune('0'+i)),
			Method:    "GET",
			Headers:   map[string]string{"Authorization": "Bearer x"},
		}))
	}
	return st
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHealth(t *testing.T) {
	rr := get(t, NewRouter(seededStore(t), logging.Discard()), "/health")
	require.Equal(t, http.StatusOK, rr.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}

func TestListRecords(t *testing.T) {
	h := NewRouter(seededStore(t), logging.Discard())

	rr := get(t, h, "/api/v1/records")
	require.Equal(t, http.StatusOK, rr.Code)
	var all ListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Equal(t, 3, all.Count)
	assert.Contains(t, all.Records[0].URL, "n=2")

	rr = get(t, h, "/api/v1/records?account=b@example.com&limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	var filtered ListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &filtered))
	require.Equal(t, 1, filtered.Count)
	assert.Equal(t, "b@example.com", filtered.Records[0].Account)
	assert.Equal(t, "Bearer x", filtered.Records[0].Headers["Authorization"])

	rr = get(t, h, "/api/v1/records?account=nobody@example.com")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"records":[],"count":0}`, rr.Body.String())
}

func TestListRecordsRejectsBadLimit(t *testing.T) {
	h := NewRouter(seededStore(t), logging.Discard())

	for _, q := range []string{"limit=abc", "limit=0", "limit=100000"} {
		rr := get(t, h, "/api/v1/records?"+q)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestLatestRecord(t *testing.T) {
	h := NewRouter(seededStore(t), logging.Discard())

	rr := get(t, h, "/api/v1/records/latest?account=a@example.com")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec store.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "a@example.com", rec.Account)
	assert.Contains(t, rec.URL, "n=2")

	rr = get(t, h, "/api/v1/records/latest?account=nobody@example.com")
	require.Equal(t, http.StatusNotFound, rr.Code)
	var e httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	assert.Equal(t, http.StatusNotFound, e.Code)
}

type brokenRecords struct{}

func (brokenRecords) List(context.Context, store.ListOptions) ([]store.Record, error) {
	return nil, errors.New("database is locked")
}

func (brokenRecords) Latest(context.Context, string) (*store.Record, error) {
	return nil, errors.New("database is locked")
}

func TestStoreErrorsAreInternal(t *testing.T) {
	h := NewRouter(brokenRecords{}, logging.Discard())

	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/api/v1/records").Code)
	rr := get(t, h, "/api/v1/records/latest")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "locked")
}
