package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"attachpurge/backend/internal/config"
	"attachpurge/backend/internal/logger"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "purgectl",
	Short: "Attachment version purge administration",
	Long: `purgectl manages attachment version retention policies and runs purges
against the configured store.

Configuration is read from ATTACHPURGE_* environment variables, an optional
.env file and the file given with --config.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig 加载配置并创建日志
//
// 命令行默认只输出 warn 以上的日志，--verbose 时输出 debug。
// 日志写到 stderr，stdout 只留给命令结果。
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := cfg.Log
	logCfg.Level = "warn"
	if verbose {
		logCfg.Level = "debug"
	}
	logCfg.Development = true

	log, err := logger.NewWithWriter(logCfg, zapcore.Lock(os.Stderr))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
