package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/catenarytransit/cypress/internal/biz"
)

const bulkItemAttempts = 5

// bulkRetryBase 条目级重试的基础等待；按尝试次数指数放大。
var bulkRetryBase = 250 * time.Millisecond

// NewPlaceRepo 文档仓库实现。
func NewPlaceRepo(d *Data, logger log.Logger) biz.PlaceRepo {
	return &placeRepo{data: d, log: log.NewHelper(logger)}
}

type placeRepo struct {
	data *Data
	log  *log.Helper
}

// EnsureIndex 建索引；recreate 为真时先删除已有索引。
func (r *placeRepo) EnsureIndex(ctx context.Context, recreate bool) error {
	es := r.data.ES()
	index := r.data.Index()

	res, err := es.Indices.Exists([]string{index}, es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	res.Body.Close()
	exists := res.StatusCode == 200

	if exists {
		if !recreate {
			return nil
		}
		r.log.Infof("deleting existing index %s", index)
		del, err := es.Indices.Delete([]string{index}, es.Indices.Delete.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("delete index %s: %w", index, err)
		}
		del.Body.Close()
		if del.IsError() {
			return fmt.Errorf("delete index %s: %s", index, del.Status())
		}
	}

	r.log.Infof("creating index %s", index)
	create, err := es.Indices.Create(index,
		es.Indices.Create.WithBody(strings.NewReader(placesMapping)),
		es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer create.Body.Close()
	if create.IsError() {
		body, _ := bodyString(create.Body)
		return fmt.Errorf("create index %s: %s: %s", index, create.Status(), body)
	}
	return nil
}

// bulkItem 一次 bulk 里的单个文档及其剩余重试次数。
type bulkItem struct {
	id       string
	payload  []byte
	attempts int
}

// BulkIndex 批量 upsert。返回错误的条目（不论状态码）退避重试，重试耗尽则丢弃计入
// failed；请求级 4xx（非 429）视为致命。
func (r *placeRepo) BulkIndex(ctx context.Context, places []*biz.Place) (int, int, error) {
	items := make([]*bulkItem, 0, len(places))
	for _, p := range places {
		payload, err := json.Marshal(p)
		if err != nil {
			r.log.Errorf("marshal place %s: %v", p.ID, err)
			continue
		}
		items = append(items, &bulkItem{id: p.ID, payload: payload})
	}

	indexed, failed := 0, 0
	pending := items
	for len(pending) > 0 {
		retry, ok, err := r.bulkOnce(ctx, pending)
		if err != nil {
			return indexed, failed, err
		}
		indexed += ok

		var next []*bulkItem
		for _, item := range retry {
			item.attempts++
			if item.attempts >= bulkItemAttempts {
				failed++
				r.log.Errorf("dropping document %s after %d bulk attempts", item.id, item.attempts)
				continue
			}
			next = append(next, item)
		}
		if len(next) > 0 {
			wait := time.Duration(1<<uint(next[0].attempts)) * bulkRetryBase
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return indexed, failed, ctx.Err()
			}
		}
		pending = next
	}
	return indexed, failed, nil
}

// bulkOnce 发送一次 bulk 请求。返回需要重试的条目。
// 网络错误与请求级 5xx 在退避内整批重试。
func (r *placeRepo) bulkOnce(ctx context.Context, items []*bulkItem) ([]*bulkItem, int, error) {
	var body bytes.Buffer
	for _, item := range items {
		meta, _ := json.Marshal(map[string]any{"index": map[string]any{"_id": item.id}})
		body.Write(meta)
		body.WriteByte('\n')
		body.Write(item.payload)
		body.WriteByte('\n')
	}

	es := r.data.ES()
	var response struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}

	operation := func() error {
		response.Errors = false
		response.Items = nil
		res, err := es.Bulk(bytes.NewReader(body.Bytes()),
			es.Bulk.WithIndex(r.data.Index()),
			es.Bulk.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("bulk request: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			msg, _ := bodyString(res.Body)
			err := fmt.Errorf("bulk request: %s: %s", res.Status(), msg)
			if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != 429 {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
			return fmt.Errorf("decode bulk response: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, 4), ctx)); err != nil {
		return nil, 0, err
	}

	if !response.Errors {
		return nil, len(items), nil
	}

	byID := make(map[string]*bulkItem, len(items))
	for _, item := range items {
		byID[item.id] = item
	}
	var retry []*bulkItem
	ok := 0
	logged := 0
	for _, entry := range response.Items {
		result, found := entry["index"]
		if !found {
			continue
		}
		if result.Error == nil {
			ok++
			continue
		}
		if logged < 5 {
			r.log.Warnf("bulk item %s failed (%d %s): %s",
				result.ID, result.Status, result.Error.Type, result.Error.Reason)
			logged++
		}
		if item, found := byID[result.ID]; found {
			retry = append(retry, item)
		}
	}
	return retry, ok, nil
}

// DeleteStale 删除同源且版本更旧的文档。
func (r *placeRepo) DeleteStale(ctx context.Context, sourceFile string, version int64) (int64, error) {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"term": map[string]any{"source_file": sourceFile}},
				},
				"filter": []any{
					map[string]any{"range": map[string]any{"version": map[string]any{"lt": version}}},
				},
			},
		},
	}
	payload, _ := json.Marshal(query)

	es := r.data.ES()
	res, err := es.DeleteByQuery([]string{r.data.Index()}, bytes.NewReader(payload),
		es.DeleteByQuery.WithContext(ctx),
		es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale documents: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := bodyString(res.Body)
		return 0, fmt.Errorf("delete stale documents: %s: %s", res.Status(), msg)
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// DocCount 索引内文档总数。
func (r *placeRepo) DocCount(ctx context.Context) (int64, error) {
	es := r.data.ES()
	res, err := es.Count(es.Count.WithIndex(r.data.Index()), es.Count.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("count documents: %s", res.Status())
	}
	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	return parsed.Count, nil
}

func bodyString(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 1<<16))
	return string(raw), err
}
