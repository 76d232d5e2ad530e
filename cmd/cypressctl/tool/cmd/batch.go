package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"github.com/fatih/color"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/spf13/cobra"

	"github.com/catenarytransit/cypress/internal/biz"
	"github.com/catenarytransit/cypress/internal/conf"
	"github.com/catenarytransit/cypress/internal/data"
)

var batchConfigPath string

// batchCmd 按配置文件依次导入多个区域。
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "按配置批量导入多个区域",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := conf.LoadBatch(batchConfigPath)
		if err != nil {
			return err
		}

		base := singleOpts
		base.Index = indexName
		esSet := cmd.Flags().Changed("es-url")
		switch {
		case esSet:
			base.ESURL = esURL
		case cfg.Global.ESURL != "":
			base.ESURL = cfg.Global.ESURL
			esSet = true
		}
		if err := base.Resolve(esSet); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := newLogger()
		helper := log.NewHelper(logger)
		if err := os.MkdirAll(cfg.Global.TmpDir, 0o755); err != nil {
			return conf.Invalidf("create tmp dir %s: %v", cfg.Global.TmpDir, err)
		}

		var firstErr error
		createIndex := base.CreateIndex
		for _, region := range cfg.Regions {
			if err := ctx.Err(); err != nil {
				return err
			}
			helper.Infof("region %s: preparing", region.Name)

			path, hash, err := prepareRegion(ctx, region, cfg.Global.TmpDir, helper)
			if err != nil {
				helper.Errorf("region %s: prepare failed: %v", region.Name, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			skip, err := regionUpToDate(ctx, base, path, hash, logger)
			if err == nil && skip && !base.Refresh {
				helper.Infof("region %s: up to date, skipping", region.Name)
				// 跳过也视为处理过：后续区域不得再重建索引
				createIndex = false
				continue
			}

			regionCfg := base
			regionCfg.File = path
			regionCfg.CreateIndex = createIndex
			stats, err := runIngest(ctx, regionCfg, hash, logger)
			createIndex = false
			if err != nil {
				helper.Errorf("region %s: ingest failed: %v", region.Name, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			color.Green("region %s: %d documents indexed (v%d)", region.Name, stats.PlacesIndexed, stats.Version)
		}
		return firstErr
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchConfigPath, "config", "regions.yaml", "区域配置文件（YAML）")
	// 与 single 共享的基础选项，对每个区域生效
	batchCmd.Flags().BoolVar(&singleOpts.Wikidata, "wikidata", false, "从标签服务拉取补充名称")
	batchCmd.Flags().BoolVar(&singleOpts.Refresh, "refresh", false, "强制重导并清理旧版本文档")
	batchCmd.Flags().BoolVar(&singleOpts.CreateIndex, "create-index", false, "首个区域导入前重建索引")
	batchCmd.Flags().BoolVar(&singleOpts.MergeRoads, "merge-roads", true, "合并同名相邻道路")
	batchCmd.Flags().IntVar(&singleOpts.BatchSize, "batch-size", 500, "bulk 批大小")
	batchCmd.Flags().StringVar(&singleOpts.ImportanceFile, "importance-file", "", "wikimedia importance CSV（可选）")
	rootCmd.AddCommand(batchCmd)
}

// prepareRegion 下载（如缺失）并计算文件指纹。
func prepareRegion(ctx context.Context, region conf.Region, tmpDir string, helper *log.Helper) (string, string, error) {
	name := region.URL[strings.LastIndexByte(region.URL, '/')+1:]
	if name == "" {
		name = region.Name + ".osm.pbf"
	}
	path := filepath.Join(tmpDir, name)

	if _, err := os.Stat(path); err != nil {
		helper.Infof("downloading %s", region.URL)
		if err := download(ctx, region.URL, path); err != nil {
			return "", "", err
		}
	}

	hash, err := hashFile(path)
	if err != nil {
		return "", "", err
	}
	return path, hash, nil
}

// regionUpToDate 文件指纹与上次完整运行一致则可跳过。
func regionUpToDate(ctx context.Context, cfg conf.Ingest, path, hash string, logger log.Logger) (bool, error) {
	d, err := data.NewData(cfg.ESURL, cfg.Index, logger)
	if err != nil {
		return false, err
	}
	record, err := data.NewVersionRepo(d, logger).Get(ctx, biz.SourceStem(path))
	if err != nil || record == nil {
		return false, err
	}
	return record.FileHash == hash && record.FinishedAt != nil, nil
}

func download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", url, res.Status)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, res.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
