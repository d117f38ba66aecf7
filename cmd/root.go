// Package cmd implements the rssagg command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/bryan-buckman/rssagg/internal/config"
	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	addr       string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rssagg",
	Short: "RSS aggregator",
	Long: `rssagg tracks RSS feeds submitted through a web form, polls them for
new posts and pushes updates to open browser tabs.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "rssagg.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error; overrides log.level")
}

// loadConfig reads the config file, applies flag overrides and initializes
// the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
