package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/catenarytransit/cypress/internal/biz"
)

const (
	sparqlEndpoint = "https://query.wikidata.org/sparql"
	labelBatchSize = 50
	labelUserAgent = "cypress/1.0 (geocoder ingest; github.com/catenarytransit/cypress)"
)

// NewWikidataRepo 标签服务客户端。标签缓存挂在共享缓存上：
// 取到标签的 Q-ID 在缓存过期前不再查询；未取到标签的 Q-ID 不缓存。
func NewWikidataRepo(d *Data, logger log.Logger) biz.LabelRepo {
	return &wikidataRepo{
		data:     d,
		endpoint: sparqlEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log.NewHelper(logger),
	}
}

type wikidataRepo struct {
	data     *Data
	endpoint string
	client   *http.Client
	log      *log.Helper
}

type sparqlResponse struct {
	Results struct {
		Bindings []struct {
			Item struct {
				Value string `json:"value"`
			} `json:"item"`
			ItemLabel struct {
				Value string `json:"value"`
				Lang  string `json:"xml:lang"`
			} `json:"itemLabel"`
		} `json:"bindings"`
	} `json:"results"`
}

// FetchLabels 拉取一组 Q-ID 的逐语言标签。分块不超过 50；
// 429/5xx 按退避重试（基数 500ms、倍率 2、封顶 30s、至多 6 次）。
func (r *wikidataRepo) FetchLabels(ctx context.Context, qids []string) (map[string]biz.NameBundle, error) {
	out := make(map[string]biz.NameBundle)

	var misses []string
	seen := make(map[string]bool, len(qids))
	for _, qid := range qids {
		if qid == "" || seen[qid] {
			continue
		}
		seen[qid] = true
		if cached, err := r.data.Cache().Get(ctx, "wd:"+qid); err == nil && cached != "" {
			var bundle biz.NameBundle
			if json.Unmarshal([]byte(cached), &bundle) == nil {
				out[qid] = bundle
				continue
			}
		}
		misses = append(misses, qid)
	}

	for start := 0; start < len(misses); start += labelBatchSize {
		end := min(start+labelBatchSize, len(misses))
		chunk := misses[start:end]
		fetched, err := r.fetchChunk(ctx, chunk)
		if err != nil {
			if len(out) > 0 {
				r.log.Warnf("label fetch degraded after %d labels: %v", len(out), err)
				return out, nil
			}
			return nil, err
		}
		for qid, bundle := range fetched {
			out[qid] = bundle
			if raw, err := json.Marshal(bundle); err == nil {
				_ = r.data.Cache().Set(ctx, "wd:"+qid, string(raw))
			}
		}
	}
	return out, nil
}

// fetchChunk 单次 SPARQL 查询（VALUES 子句批量）。
func (r *wikidataRepo) fetchChunk(ctx context.Context, qids []string) (map[string]biz.NameBundle, error) {
	values := make([]string, 0, len(qids))
	for _, qid := range qids {
		values = append(values, "wd:"+qid)
	}
	query := fmt.Sprintf(`SELECT ?item ?itemLabel WHERE {
  VALUES ?item { %s }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_ALL]". }
}`, strings.Join(values, " "))

	var parsed sparqlResponse
	operation := func() error {
		params := url.Values{"query": {query}, "format": {"json"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", labelUserAgent)

		res, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("labels request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return fmt.Errorf("labels request: %s", res.Status)
		}
		if res.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("labels request: %s", res.Status))
		}
		parsed = sparqlResponse{}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode labels response: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, 5), ctx)); err != nil {
		return nil, err
	}

	out := make(map[string]biz.NameBundle)
	for _, binding := range parsed.Results.Bindings {
		uri := binding.Item.Value
		qid := uri[strings.LastIndexByte(uri, '/')+1:]
		if qid == "" {
			continue
		}
		lang := binding.ItemLabel.Lang
		if lang == "" {
			lang = biz.DefaultName
		}
		bundle, ok := out[qid]
		if !ok {
			bundle = biz.NameBundle{}
			out[qid] = bundle
		}
		bundle[strings.ToLower(lang)] = binding.ItemLabel.Value
	}
	return out, nil
}
