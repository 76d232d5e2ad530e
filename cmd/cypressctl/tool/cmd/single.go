package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/catenarytransit/cypress/internal/biz"
	"github.com/catenarytransit/cypress/internal/conf"
	"github.com/catenarytransit/cypress/internal/data"
)

var singleOpts = conf.Defaults()

// singleCmd 一次性导入单个 PBF 文件。
var singleCmd = &cobra.Command{
	Use:   "single",
	Short: "导入单个 OSM PBF 文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		if singleOpts.File == "" {
			return conf.Invalidf("--file is required")
		}
		cfg := singleOpts
		cfg.ESURL = esURL
		cfg.Index = indexName
		if err := cfg.Resolve(cmd.Flags().Changed("es-url")); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stats, err := runIngest(ctx, cfg, "", newLogger())
		if err != nil {
			color.Red("ingest failed: %v", err)
			return err
		}
		color.Green("indexed %d documents (%d errors, %d stale purged) for %s v%d",
			stats.PlacesIndexed, stats.IndexErrors, stats.StaleDeleted, stats.SourceFile, stats.Version)
		return nil
	},
}

func init() {
	singleCmd.Flags().StringVar(&singleOpts.File, "file", "", "OSM PBF 文件路径")
	singleCmd.Flags().StringVar(&singleOpts.AdminFile, "admin-file", "", "预过滤的行政边界 PBF（可选）")
	singleCmd.Flags().StringVar(&singleOpts.ImportanceFile, "importance-file", "", "wikimedia importance CSV（可选）")
	singleCmd.Flags().BoolVar(&singleOpts.Wikidata, "wikidata", false, "从标签服务拉取补充名称")
	singleCmd.Flags().BoolVar(&singleOpts.Refresh, "refresh", false, "成功后删除上一版本的文档")
	singleCmd.Flags().BoolVar(&singleOpts.CreateIndex, "create-index", false, "导入前重建索引")
	singleCmd.Flags().BoolVar(&singleOpts.MergeRoads, "merge-roads", true, "合并同名相邻道路")
	singleCmd.Flags().IntVar(&singleOpts.BatchSize, "batch-size", 500, "bulk 批大小")
	singleCmd.Flags().StringVar(&singleOpts.WebhookURL, "webhook-url", "", "运行通知 webhook（可选）")
	singleCmd.Flags().StringVar(&singleOpts.MetricsAddr, "metrics-addr", "", "prometheus 监听地址（可选）")
	rootCmd.AddCommand(singleCmd)
}

// runIngest 装配依赖并跑一次导入；single 与 batch 共用。
func runIngest(ctx context.Context, cfg conf.Ingest, fileHash string, logger log.Logger) (*biz.IngestStats, error) {
	helper := log.NewHelper(logger)

	d, err := data.NewData(cfg.ESURL, cfg.Index, logger)
	if err != nil {
		// 后端不可达按配置错误处理
		return nil, conf.Invalidf("%v", err)
	}

	var importance biz.ImportanceTable
	switch {
	case cfg.ImportanceFile != "":
		importance, err = data.LoadImportance(cfg.ImportanceFile, logger)
		if err != nil {
			return nil, conf.Invalidf("%v", err)
		}
	default:
		if _, statErr := os.Stat("wikimedia-importance.csv"); statErr == nil {
			importance, err = data.LoadImportance("wikimedia-importance.csv", logger)
			if err != nil {
				return nil, err
			}
		} else {
			helper.Warn("no importance file found, using default importance only")
		}
	}

	var labels biz.LabelRepo
	if cfg.Wikidata {
		labels = data.NewWikidataRepo(d, logger)
	}
	var notifier biz.Notifier
	if cfg.WebhookURL != "" {
		notifier = data.NewWebhookNotifier(cfg.WebhookURL, logger)
	}

	openSource := func(path string) (biz.EntitySource, error) {
		source, err := data.NewPBFSource(path, logger)
		if err != nil {
			return nil, conf.Invalidf("%v", err)
		}
		return source, nil
	}
	if _, err := openSource(cfg.File); err != nil {
		return nil, err
	}

	uc := biz.NewIngestUsecase(
		openSource,
		data.NewPlaceRepo(d, logger),
		data.NewVersionRepo(d, logger),
		labels,
		notifier,
		importance,
		logger,
	)

	metrics := biz.NewMetrics()
	uc.SetMetrics(metrics)
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.Collectors()...)
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				helper.Warnf("metrics listener: %v", err)
			}
		}()
		defer server.Close()
	}

	return uc.Run(ctx, biz.IngestOptions{
		File:           cfg.File,
		AdminFile:      cfg.AdminFile,
		Wikidata:       cfg.Wikidata,
		Refresh:        cfg.Refresh,
		CreateIndex:    cfg.CreateIndex,
		MergeRoads:     cfg.MergeRoads,
		BatchSize:      cfg.BatchSize,
		FlushInterval:  cfg.FlushInterval,
		LangPreference: cfg.LangPreference,
		FileHash:       fileHash,
	})
}
