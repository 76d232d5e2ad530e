package data

import (
	"fmt"
	"net/http"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/go-kratos/kratos/v2/log"
	gocache "github.com/patrickmn/go-cache"
)

// Data 后端句柄：Elasticsearch 客户端 + 进程内缓存。
type Data struct {
	es    *elasticsearch.Client
	cache *cache.Cache[string]
	index string
	log   *log.Helper
}

// NewData 连接搜索后端并做健康检查。
func NewData(esURL, index string, logger log.Logger) (*Data, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{esURL},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
		Transport: &http.Transport{
			ResponseHeaderTimeout: 30 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build elasticsearch client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch unreachable at %s: %w", esURL, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch unhealthy at %s: %s", esURL, res.Status())
	}

	c := cache.New[string](gocache_store.NewGoCache(gocache.New(30*time.Minute, 10*time.Minute)))

	return &Data{
		es:    client,
		cache: c,
		index: index,
		log:   log.NewHelper(logger),
	}, nil
}

// ES 返回底层客户端。
func (d *Data) ES() *elasticsearch.Client { return d.es }

// Cache 返回共享缓存。
func (d *Data) Cache() *cache.Cache[string] { return d.cache }

// Index 目标索引名。
func (d *Data) Index() string { return d.index }
