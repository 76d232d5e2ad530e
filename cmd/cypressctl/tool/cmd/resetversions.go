package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/spf13/cobra"

	"github.com/catenarytransit/cypress/internal/conf"
	"github.com/catenarytransit/cypress/internal/data"
)

// resetVersionsCmd 删除版本辅助索引，强制下一次全量重导。
var resetVersionsCmd = &cobra.Command{
	Use:   "reset-versions",
	Short: "清空版本历史（下次运行全部区域重新导入）",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := conf.Defaults()
		cfg.ESURL = esURL
		cfg.Index = indexName
		if err := cfg.Resolve(cmd.Flags().Changed("es-url")); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := newLogger()
		d, err := data.NewData(cfg.ESURL, cfg.Index, logger)
		if err != nil {
			return conf.Invalidf("%v", err)
		}
		if err := data.NewVersionRepo(d, logger).Reset(ctx); err != nil {
			return err
		}
		log.NewHelper(logger).Info("version history cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetVersionsCmd)
}
