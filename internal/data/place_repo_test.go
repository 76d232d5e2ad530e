package data

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/go-kratos/kratos/v2/log"
	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catenarytransit/cypress/internal/biz"
)

// esHandler 包一层：补上产品校验头。
func esHandler(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		h(w, r)
	})
}

func newTestData(t *testing.T, url string) *Data {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	require.NoError(t, err)
	return &Data{
		es:    client,
		cache: cache.New[string](gocache_store.NewGoCache(gocache.New(time.Minute, time.Minute))),
		index: "places",
		log:   log.NewHelper(testLogger()),
	}
}

func testPlaces(ids ...string) []*biz.Place {
	out := make([]*biz.Place, 0, len(ids))
	for _, id := range ids {
		out = append(out, &biz.Place{
			ID:          id,
			Layer:       biz.LayerVenue,
			SourceFile:  "test",
			Version:     1,
			CenterPoint: biz.GeoPoint{Lat: 1, Lon: 2},
			Name:        biz.NameBundle{"default": id},
		})
	}
	return out
}

func bulkResponse(t *testing.T, failures map[string]int) string {
	t.Helper()
	type indexResult struct {
		ID     string         `json:"_id"`
		Status int            `json:"status"`
		Error  map[string]any `json:"error,omitempty"`
	}
	var items []map[string]indexResult
	hasErrors := false
	for id, status := range failures {
		result := indexResult{ID: id, Status: status}
		if status >= 400 {
			hasErrors = true
			result.Error = map[string]any{"type": "rejected", "reason": "busy"}
		}
		items = append(items, map[string]indexResult{"index": result})
	}
	raw, err := json.Marshal(map[string]any{"errors": hasErrors, "items": items})
	require.NoError(t, err)
	return string(raw)
}

func TestBulkIndexSuccess(t *testing.T) {
	var lines atomic.Int64
	srv := httptest.NewServer(esHandler(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/places/_bulk", r.URL.Path)
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			if len(strings.TrimSpace(scanner.Text())) > 0 {
				lines.Add(1)
			}
		}
		w.Write([]byte(bulkResponse(t, map[string]int{"node/1": 200, "node/2": 200})))
	}))
	defer srv.Close()

	repo := NewPlaceRepo(newTestData(t, srv.URL), testLogger())
	indexed, failed, err := repo.BulkIndex(context.Background(), testPlaces("node/1", "node/2"))
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, int64(4), lines.Load(), "action + document line per place")
}

func TestBulkIndexRetriesFailedItems(t *testing.T) {
	old := bulkRetryBase
	bulkRetryBase = time.Millisecond
	defer func() { bulkRetryBase = old }()

	var calls atomic.Int64
	srv := httptest.NewServer(esHandler(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(bulkResponse(t, map[string]int{"node/1": 200, "node/2": 429})))
			return
		}
		w.Write([]byte(bulkResponse(t, map[string]int{"node/2": 200})))
	}))
	defer srv.Close()

	repo := NewPlaceRepo(newTestData(t, srv.URL), testLogger())
	indexed, failed, err := repo.BulkIndex(context.Background(), testPlaces("node/1", "node/2"))
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, int64(2), calls.Load())
}

func TestBulkIndexDropsItemAfterRetryBudget(t *testing.T) {
	old := bulkRetryBase
	bulkRetryBase = time.Millisecond
	defer func() { bulkRetryBase = old }()

	var calls atomic.Int64
	srv := httptest.NewServer(esHandler(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(bulkResponse(t, map[string]int{"node/1": 429})))
	}))
	defer srv.Close()

	repo := NewPlaceRepo(newTestData(t, srv.URL), testLogger())
	indexed, failed, err := repo.BulkIndex(context.Background(), testPlaces("node/1"))
	require.NoError(t, err)
	assert.Equal(t, 0, indexed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, int64(bulkItemAttempts), calls.Load())
}

func TestBulkIndexFatalOn4xx(t *testing.T) {
	srv := httptest.NewServer(esHandler(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"mapper_parsing_exception"}}`))
	}))
	defer srv.Close()

	repo := NewPlaceRepo(newTestData(t, srv.URL), testLogger())
	_, _, err := repo.BulkIndex(context.Background(), testPlaces("node/1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestDeleteStaleBuildsVersionPredicate(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(esHandler(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/places/_delete_by_query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"deleted": 3}`))
	}))
	defer srv.Close()

	repo := NewPlaceRepo(newTestData(t, srv.URL), testLogger())
	deleted, err := repo.DeleteStale(context.Background(), "switzerland-latest", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	raw, _ := json.Marshal(captured)
	query := string(raw)
	assert.Contains(t, query, `"source_file":"switzerland-latest"`)
	assert.Contains(t, query, `"lt":5`)
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	var created atomic.Bool
	srv := httptest.NewServer(esHandler(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/places":
			created.Store(true)
			w.Write([]byte(`{"acknowledged": true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	repo := NewPlaceRepo(newTestData(t, srv.URL), testLogger())
	require.NoError(t, repo.EnsureIndex(context.Background(), false))
	assert.True(t, created.Load())
}

func TestEnsureIndexRecreate(t *testing.T) {
	var deleted, created atomic.Bool
	srv := httptest.NewServer(esHandler(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete:
			deleted.Store(true)
			w.Write([]byte(`{"acknowledged": true}`))
		case r.Method == http.MethodPut:
			created.Store(true)
			w.Write([]byte(`{"acknowledged": true}`))
		}
	}))
	defer srv.Close()

	repo := NewPlaceRepo(newTestData(t, srv.URL), testLogger())
	require.NoError(t, repo.EnsureIndex(context.Background(), true))
	assert.True(t, deleted.Load())
	assert.True(t, created.Load())

	// 已存在且不要求重建：什么都不做
	deleted.Store(false)
	created.Store(false)
	require.NoError(t, repo.EnsureIndex(context.Background(), false))
	assert.False(t, deleted.Load())
	assert.False(t, created.Load())
}

func TestDocCount(t *testing.T) {
	srv := httptest.NewServer(esHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 42}`))
	}))
	defer srv.Close()

	repo := NewPlaceRepo(newTestData(t, srv.URL), testLogger())
	count, err := repo.DocCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}
