package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catenarytransit/cypress/internal/biz"
)

const sparqlFixture = `{
  "results": {
    "bindings": [
      {
        "item": {"value": "http://www.wikidata.org/entity/Q64"},
        "itemLabel": {"value": "Berlin", "xml:lang": "en"}
      },
      {
        "item": {"value": "http://www.wikidata.org/entity/Q64"},
        "itemLabel": {"value": "Berlino", "xml:lang": "it"}
      }
    ]
  }
}`

func newTestWikidataRepo(t *testing.T, url string) *wikidataRepo {
	t.Helper()
	return &wikidataRepo{
		data:     newTestData(t, "http://127.0.0.1:1"), // 只用它的缓存
		endpoint: url,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      log.NewHelper(testLogger()),
	}
}

func TestFetchLabelsParsesBindings(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.NotEmpty(t, r.URL.Query().Get("query"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Write([]byte(sparqlFixture))
	}))
	defer srv.Close()

	repo := newTestWikidataRepo(t, srv.URL)
	labels, err := repo.FetchLabels(context.Background(), []string{"Q64"})
	require.NoError(t, err)
	require.Contains(t, labels, "Q64")
	assert.Equal(t, biz.NameBundle{"en": "Berlin", "it": "Berlino"}, labels["Q64"])

	// 第二次命中缓存，不再发请求
	_, err = repo.FetchLabels(context.Background(), []string{"Q64"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchLabelsRetriesOn5xx(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sparqlFixture))
	}))
	defer srv.Close()

	repo := newTestWikidataRepo(t, srv.URL)
	labels, err := repo.FetchLabels(context.Background(), []string{"Q64"})
	require.NoError(t, err)
	assert.Contains(t, labels, "Q64")
	assert.Equal(t, int64(2), calls.Load())
}

func TestFetchLabelsPermanentFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	repo := newTestWikidataRepo(t, srv.URL)
	_, err := repo.FetchLabels(context.Background(), []string{"Q64"})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load(), "non-retryable status must not be retried")
}

func TestFetchLabelsDeduplicatesQIDs(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(sparqlFixture))
	}))
	defer srv.Close()

	repo := newTestWikidataRepo(t, srv.URL)
	_, err := repo.FetchLabels(context.Background(), []string{"Q64", "Q64", "", "Q64"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}
