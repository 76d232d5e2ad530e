package cmd

import (
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/spf13/cobra"
)

var (
	esURL     string
	indexName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cypressctl",
	Short: "Cypress 地理编码导入工具",
	Long:  `cypressctl 把 OSM PBF 提取文件导入搜索后端（single/batch/reset-versions）。`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&esURL, "es-url", "http://localhost:9200", "Elasticsearch 地址（覆盖 ELASTICSEARCH_URL）")
	rootCmd.PersistentFlags().StringVar(&indexName, "index", "places", "目标索引名")
}

// newLogger 统一的结构化日志（ts + caller）。
func newLogger() log.Logger {
	return log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
	)
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
