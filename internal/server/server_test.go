package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/afroash/envdash/internal/ingest"
	"github.com/afroash/envdash/internal/models"
	"github.com/afroash/envdash/internal/sampling"
	"github.com/afroash/envdash/internal/storage"
)

type testStore interface {
	ReadingStore
	sampling.Source
}

// testLogger creates a logger for tests
func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.WarnLevel)
}

// newTestServer starts the full HTTP surface over store
func newTestServer(t *testing.T, store testStore, cfg RouterConfig) (*httptest.Server, *StreamHandler) {
	t.Helper()

	validator, err := ingest.NewValidator(ingest.DefaultSchema())
	require.NoError(t, err)
	queries, err := sampling.NewService(store, sampling.ServiceConfig{
		FallbackCount: sampling.DefaultFallbackCount,
		CacheSize:     16,
	}, testLogger())
	require.NoError(t, err)

	ingester := NewIngester(validator, store, testLogger())
	api := NewAPIHandler(ingester, queries, store, "test", testLogger())
	stream := NewStreamHandler(ingester, testLogger())

	srv := httptest.NewServer(NewRouter(api, stream, cfg, testLogger()))
	t.Cleanup(srv.Close)
	return srv, stream
}

func newMemoryStore(t *testing.T) *storage.MemoryStore {
	store := storage.NewMemoryStore(storage.DefaultMemoryCapacity, testLogger())
	t.Cleanup(func() { store.Close() })
	return store
}

// brokenStore fails every operation
type brokenStore struct{}

func (brokenStore) Append(ctx context.Context, r *models.Reading) (*models.Reading, error) {
	return nil, fmt.Errorf("%w: disk full", storage.ErrUnavailable)
}

func (brokenStore) AppendBatch(ctx context.Context, rs []*models.Reading) ([]*models.Reading, error) {
	return nil, fmt.Errorf("%w: disk full", storage.ErrUnavailable)
}

func (brokenStore) Stats(ctx context.Context) (*storage.Stats, error) {
	return nil, fmt.Errorf("%w: disk full", storage.ErrUnavailable)
}

func (brokenStore) Latest(ctx context.Context) (*models.Reading, error) {
	return nil, fmt.Errorf("%w: disk full", storage.ErrUnavailable)
}

func (brokenStore) Range(ctx context.Context, start, end time.Time, order models.Order) ([]*models.Reading, error) {
	return nil, fmt.Errorf("%w: disk full", storage.ErrUnavailable)
}

func doRequest(t *testing.T, method, url, token string, body []byte) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(bytes.TrimSpace(data)) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	}
	return resp.StatusCode, out
}
