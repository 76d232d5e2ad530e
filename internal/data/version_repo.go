package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/catenarytransit/cypress/internal/biz"
)

// versionsIndex 版本辅助索引名。
const versionsIndex = "cypress_versions"

// NewVersionRepo 版本记录仓库实现。
func NewVersionRepo(d *Data, logger log.Logger) biz.VersionRepo {
	return &versionRepo{data: d, log: log.NewHelper(logger)}
}

type versionRepo struct {
	data *Data
	log  *log.Helper
}

// Get 读取版本记录；不存在返回 nil。
func (r *versionRepo) Get(ctx context.Context, sourceFile string) (*biz.SourceVersion, error) {
	es := r.data.ES()
	res, err := es.Get(versionsIndex, sourceFile, es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get version record %s: %w", sourceFile, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get version record %s: %s", sourceFile, res.Status())
	}

	var parsed struct {
		Source biz.SourceVersion `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode version record %s: %w", sourceFile, err)
	}
	return &parsed.Source, nil
}

// Put 写入版本记录（立即可见，供同进程串行读回）。
func (r *versionRepo) Put(ctx context.Context, v *biz.SourceVersion) error {
	if err := r.ensureIndex(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal version record %s: %w", v.SourceFile, err)
	}

	es := r.data.ES()
	res, err := es.Index(versionsIndex, strings.NewReader(string(payload)),
		es.Index.WithDocumentID(v.SourceFile),
		es.Index.WithRefresh("true"),
		es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("put version record %s: %w", v.SourceFile, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("put version record %s: %s", v.SourceFile, res.Status())
	}
	return nil
}

// Reset 删除整个版本辅助索引（reset-versions 子命令）。
func (r *versionRepo) Reset(ctx context.Context) error {
	es := r.data.ES()
	res, err := es.Indices.Delete([]string{versionsIndex},
		es.Indices.Delete.WithIgnoreUnavailable(true),
		es.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete versions index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete versions index: %s", res.Status())
	}
	r.log.Info("version history reset")
	return nil
}

func (r *versionRepo) ensureIndex(ctx context.Context) error {
	es := r.data.ES()
	res, err := es.Indices.Exists([]string{versionsIndex}, es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check versions index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	create, err := es.Indices.Create(versionsIndex,
		es.Indices.Create.WithBody(strings.NewReader(versionsMapping)),
		es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create versions index: %w", err)
	}
	defer create.Body.Close()
	// 并发创建时的 already exists 无害
	if create.IsError() && create.StatusCode != 400 {
		return fmt.Errorf("create versions index: %s", create.Status())
	}
	return nil
}
