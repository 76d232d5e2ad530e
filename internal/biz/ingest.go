package biz

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// PlaceRepo 搜索后端的文档操作。
type PlaceRepo interface {
	// EnsureIndex 建索引；recreate 为真时先删后建。
	EnsureIndex(ctx context.Context, recreate bool) error
	// BulkIndex 批量 upsert。条目级失败在内部重试，重试耗尽的条目
	// 计入 failed；返回 error 仅表示不可恢复的后端失败。
	BulkIndex(ctx context.Context, places []*Place) (indexed, failed int, err error)
	// DeleteStale 删除 source_file 匹配且版本早于 version 的文档。
	DeleteStale(ctx context.Context, sourceFile string, version int64) (int64, error)
	DocCount(ctx context.Context) (int64, error)
}

// LabelRepo 外部标签服务：Q-ID 集合到逐语言显示名。
type LabelRepo interface {
	FetchLabels(ctx context.Context, qids []string) (map[string]NameBundle, error)
}

// Notifier 运行事件通知（webhook）。失败只记日志。
type Notifier interface {
	Notify(ctx context.Context, title, message string, success bool)
}

// IngestOptions 一次导入的参数。
type IngestOptions struct {
	File           string
	AdminFile      string
	Wikidata       bool
	Refresh        bool
	CreateIndex    bool
	MergeRoads     bool
	BatchSize      int
	FlushInterval  time.Duration
	Workers        int
	LangPreference []string
	FileHash       string // batch 模式记录在版本里的文件指纹
}

// IngestStats 运行结束时的计数。
type IngestStats struct {
	EntitiesRead  int64
	PlacesIndexed int64
	IndexErrors   int64
	StaleDeleted  int64
	DocTotal      int64
	Version       int64
	SourceFile    string
}

// SourceOpener 按路径打开实体源。
type SourceOpener func(path string) (EntitySource, error)

// IngestUsecase 导入管线的编排：S1 → S2 → S3/S4 流水。
type IngestUsecase struct {
	openSource SourceOpener
	places     PlaceRepo
	versions   VersionRepo
	labels     LabelRepo
	notifier   Notifier
	importance ImportanceTable
	metrics    *Metrics
	logger     log.Logger
	log        *log.Helper
}

// SetMetrics 挂接运行计数器（可选）。
func (uc *IngestUsecase) SetMetrics(m *Metrics) { uc.metrics = m }

// NewIngestUsecase 构造编排器。labels、notifier 可为 nil。
func NewIngestUsecase(
	openSource SourceOpener,
	places PlaceRepo,
	versions VersionRepo,
	labels LabelRepo,
	notifier Notifier,
	importance ImportanceTable,
	logger log.Logger,
) *IngestUsecase {
	return &IngestUsecase{
		openSource: openSource,
		places:     places,
		versions:   versions,
		labels:     labels,
		notifier:   notifier,
		importance: importance,
		logger:     logger,
		log:        log.NewHelper(logger),
	}
}

// Run 执行一次完整导入。成功且要求 refresh 时才发起过期删除；
// 失败或取消都保持版本记录未定稿，下一次运行以相同或更高版本重试。
func (uc *IngestUsecase) Run(ctx context.Context, opts IngestOptions) (*IngestStats, error) {
	stem := SourceStem(opts.File)
	stats := &IngestStats{SourceFile: stem}

	uc.notify(ctx, "Ingestion Started", fmt.Sprintf("starting ingestion for %s", stem), true)

	version, err := uc.beginVersion(ctx, stem, opts.FileHash, opts.CreateIndex)
	if err != nil {
		return stats, err
	}
	stats.Version = version
	uc.log.Infof("source %s: importing as version %d", stem, version)

	if opts.CreateIndex {
		if err := uc.places.EnsureIndex(ctx, true); err != nil {
			return stats, fmt.Errorf("create index: %w", err)
		}
	} else if err := uc.places.EnsureIndex(ctx, false); err != nil {
		return stats, fmt.Errorf("ensure index: %w", err)
	}

	// S1：行政边界装配 + 空间索引
	adminPath := opts.File
	if opts.AdminFile != "" {
		adminPath = opts.AdminFile
	}
	adminSource, err := uc.openSource(adminPath)
	if err != nil {
		return stats, err
	}
	index, err := NewAssembler(adminSource, opts.LangPreference, uc.logger).Build(ctx)
	if err != nil {
		return stats, fmt.Errorf("admin assembly: %w", err)
	}
	uc.notify(ctx, "Admin Index Built",
		fmt.Sprintf("%d admin boundaries indexed for %s", index.Len(), stem), true)

	// S2：道路合并。求解器同时服务 S3 的 way 定位。
	mainSource, err := uc.openSource(opts.File)
	if err != nil {
		return stats, err
	}
	merger := NewRoadMerger(opts.LangPreference, uc.logger)
	resolver, err := BuildWayResolver(ctx, mainSource, func(w *Way) bool {
		if opts.MergeRoads && merger.Add(w) {
			return true
		}
		_, ok := Classify(w.Tags)
		return ok
	})
	if err != nil {
		return stats, fmt.Errorf("way resolution: %w", err)
	}
	var roads []*MergedRoad
	if opts.MergeRoads {
		roads = merger.Merge(resolver)
	}

	extractor := NewExtractor(
		index, resolver, merger.Consumed, uc.importance,
		opts.LangPreference, stem, version, uc.logger,
	)

	// S3/S4 经有界通道交叠；S4 背压向上传导。
	// S4 中途致命退出时取消生产侧，避免发送端永久阻塞。
	produceCtx, stopProducers := context.WithCancel(ctx)
	defer stopProducers()

	out := make(chan *Place, opts.BatchSize*4)
	indexerDone := make(chan indexerResult, 1)
	go func() {
		indexed, failed, err := uc.runIndexer(ctx, out, opts)
		stopProducers()
		indexerDone <- indexerResult{indexed, failed, err}
	}()

	runErr := uc.emitAll(produceCtx, extractor, mainSource, index, roads, opts, out, stats)
	close(out)
	result := <-indexerDone

	stats.PlacesIndexed = result.indexed
	stats.IndexErrors = result.failed
	if result.err != nil {
		runErr = result.err
	}
	if runErr != nil {
		uc.notify(ctx, "Ingestion Failed", fmt.Sprintf("%s: %v", stem, runErr), false)
		return stats, runErr
	}

	// 成功后才定稿版本并清理旧版本文档
	if opts.Refresh {
		deleted, err := uc.places.DeleteStale(ctx, stem, version)
		if err != nil {
			uc.notify(ctx, "Ingestion Failed", fmt.Sprintf("%s: stale delete: %v", stem, err), false)
			return stats, fmt.Errorf("stale delete: %w", err)
		}
		stats.StaleDeleted = deleted
		if uc.metrics != nil {
			uc.metrics.StaleDeleted.Add(float64(deleted))
		}
		uc.log.Infof("source %s: purged %d stale documents", stem, deleted)
	}
	if err := uc.finishVersion(ctx, stem); err != nil {
		uc.log.Warnf("source %s: could not finalize version record: %v", stem, err)
	}

	if total, err := uc.places.DocCount(ctx); err == nil {
		stats.DocTotal = total
	}
	uc.notify(ctx, "Ingestion Complete", fmt.Sprintf(
		"%s: indexed %d documents (%d errors), %d stale purged, %d total in index",
		stem, stats.PlacesIndexed, stats.IndexErrors, stats.StaleDeleted, stats.DocTotal), true)
	return stats, nil
}

// emitAll 依次推送行政边界、流式地点与合并道路。
func (uc *IngestUsecase) emitAll(
	ctx context.Context,
	extractor *Extractor,
	source EntitySource,
	index *AdminIndex,
	roads []*MergedRoad,
	opts IngestOptions,
	out chan<- *Place,
	stats *IngestStats,
) error {
	send := func(p *Place) error {
		select {
		case out <- p:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, area := range index.Areas() {
		if err := send(extractor.PlaceFromAdmin(area)); err != nil {
			return err
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	read, err := extractor.Run(ctx, source, workers, out)
	stats.EntitiesRead = read
	if uc.metrics != nil {
		uc.metrics.EntitiesRead.Add(float64(read))
	}
	if err != nil {
		return fmt.Errorf("place extraction: %w", err)
	}

	for _, road := range roads {
		place := extractor.PlaceFromRoad(road)
		if place == nil {
			continue
		}
		if err := send(place); err != nil {
			return err
		}
	}
	return nil
}

type indexerResult struct {
	indexed int64
	failed  int64
	err     error
}

// runIndexer S4：攒批、富集、批量写入。
// 批满或到达刷新间隔即发一次 bulk；后端致命错误向上冒泡。
func (uc *IngestUsecase) runIndexer(ctx context.Context, in <-chan *Place, opts IngestOptions) (int64, int64, error) {
	var indexed, failed int64
	batch := make([]*Place, 0, opts.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		uc.enrich(ctx, batch, opts)
		ok, bad, err := uc.places.BulkIndex(ctx, batch)
		indexed += int64(ok)
		failed += int64(bad)
		if uc.metrics != nil {
			uc.metrics.PlacesIndexed.Add(float64(ok))
			uc.metrics.IndexErrors.Add(float64(bad))
		}
		batch = batch[:0]
		return err
	}

	ticker := time.NewTicker(opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case place, open := <-in:
			if !open {
				err := flush()
				return indexed, failed, err
			}
			batch = append(batch, place)
			if len(batch) >= opts.BatchSize {
				if err := flush(); err != nil {
					return indexed, failed, err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return indexed, failed, err
			}
		case <-ctx.Done():
			return indexed, failed, ctx.Err()
		}
	}
}

// enrich 标签服务富集：OSM 名称优先，抓取的只补缺。
// 任何失败都只降级，不影响批次写入。
func (uc *IngestUsecase) enrich(ctx context.Context, batch []*Place, opts IngestOptions) {
	if !opts.Wikidata || uc.labels == nil {
		return
	}
	var qids []string
	for _, p := range batch {
		if p.WikidataID != "" {
			qids = append(qids, p.WikidataID)
		}
	}
	if len(qids) == 0 {
		return
	}
	labels, err := uc.labels.FetchLabels(ctx, qids)
	if err != nil {
		uc.log.Warnf("label enrichment unavailable, keeping OSM names: %v", err)
		return
	}
	for _, p := range batch {
		bundle, ok := labels[p.WikidataID]
		if !ok {
			continue
		}
		for lang, label := range bundle {
			if _, exists := p.Name[lang]; !exists {
				p.Name[lang] = label
			}
		}
	}
}

// beginVersion 读取旧记录并写入预提交状态的新版本。
// fresh 为真（重建索引）时版本序列从头开始。
func (uc *IngestUsecase) beginVersion(ctx context.Context, stem, fileHash string, fresh bool) (int64, error) {
	var previous int64
	if !fresh {
		prev, err := uc.versions.Get(ctx, stem)
		if err != nil {
			return 0, fmt.Errorf("read version record: %w", err)
		}
		if prev != nil {
			previous = prev.CurrentVersion
		}
	}
	record := &SourceVersion{
		SourceFile:      stem,
		CurrentVersion:  previous + 1,
		PreviousVersion: previous,
		FileHash:        fileHash,
		StartedAt:       time.Now().UTC(),
	}
	if err := uc.versions.Put(ctx, record); err != nil {
		return 0, fmt.Errorf("persist version record: %w", err)
	}
	return record.CurrentVersion, nil
}

// finishVersion 补写 finished_at，标记运行完整结束。
func (uc *IngestUsecase) finishVersion(ctx context.Context, stem string) error {
	record, err := uc.versions.Get(ctx, stem)
	if err != nil || record == nil {
		return err
	}
	now := time.Now().UTC()
	record.FinishedAt = &now
	return uc.versions.Put(ctx, record)
}

func (uc *IngestUsecase) notify(ctx context.Context, title, message string, success bool) {
	if uc.notifier == nil {
		return
	}
	uc.notifier.Notify(ctx, title, message, success)
}
