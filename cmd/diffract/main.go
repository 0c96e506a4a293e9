package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avanrossum/diffract/pkg/app"
	"github.com/avanrossum/diffract/pkg/logging"
	"github.com/avanrossum/diffract/pkg/plugin"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// envSettings are environment overrides, prefixed DIFFRACT_.
type envSettings struct {
	Workers   int    `envconfig:"WORKERS" default:"4"`
	PollMs    int    `envconfig:"POLL_MS" default:"100"`
	TimeoutMs int    `envconfig:"TIMEOUT_MS" default:"10000"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev    bool   `envconfig:"LOG_DEV" default:"false"`
}

func loadEnv() (envSettings, error) {
	var s envSettings
	if err := envconfig.Process("diffract", &s); err != nil {
		return s, fmt.Errorf("load environment settings: %w", err)
	}
	return s, nil
}

func (s envSettings) gate() app.Gate {
	return app.Gate{
		PollInterval: time.Duration(s.PollMs) * time.Millisecond,
		Timeout:      time.Duration(s.TimeoutMs) * time.Millisecond,
	}
}

func (s envSettings) logger() *zap.Logger {
	logger, err := logging.New(s.LogLevel, s.LogDev)
	if err != nil {
		return logging.NewDefault()
	}
	return logger
}

// registry builds the plugin registry used by every command. Plugin sets
// are registered explicitly; there is no runtime discovery.
func registry() *plugin.Registry {
	reg := plugin.NewRegistry()
	plugin.RegisterGenerics(reg)
	return reg
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "diffract",
		Short: "diffract — workflow engine for detector-image reduction",
		Long: `diffract executes directed workflow trees of processing plugins over
every frame of a multi-dimensional scan, serially or across a worker
pool, and aggregates the per-frame results into scan-indexed datasets.`,
	}
	root.AddCommand(runCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(compositeCmd())
	return root
}
