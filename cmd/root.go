// Package cmd wires configuration, logging and signal handling around
// the processor, watcher and simulate-event entry points.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"errorwatch/config"
	"errorwatch/queue"
	"errorwatch/storage"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:           "errorwatch",
	Short:         "Error-event aggregation and alerting worker",
	Long:          "errorwatch drains exported error events from a queue, aggregates them per issue, and periodically evaluates alert rules against the aggregates.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger, err = buildLogger(cfg.Log.Level)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to the config file (default ./config.yaml)")
	rootCmd.AddCommand(processorCmd)
	rootCmd.AddCommand(watcherCmd)
	rootCmd.AddCommand(simulateEventCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func buildLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return log.Sugar(), nil
}

func openStore() (*storage.SQLStore, error) {
	return storage.Open(cfg.Storage.Driver, cfg.Storage.DSN, logger)
}

func openQueue() (queue.Backend, error) {
	return queue.NewSQSBackend(queue.SQSConfig{
		QueueName:   cfg.Queue.Name,
		Region:      cfg.Queue.Region,
		EndpointURL: cfg.Queue.EndpointURL,
		WaitTime:    cfg.Queue.WaitTime,
	}, logger)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
// Cancellation is cooperative: in-flight batches and evaluation runs
// finish before the process exits.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
