package cmd

import (
	"github.com/spf13/cobra"

	"errorwatch/metrics"
	"errorwatch/processor"
)

var processorCmd = &cobra.Command{
	Use:   "processor",
	Short: "Consume error events from the queue and aggregate them",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		backend, err := openQueue()
		if err != nil {
			return err
		}

		aggregator, err := processor.NewAggregator(store, logger)
		if err != nil {
			return err
		}

		metrics.Serve(cfg.Metrics.ListenAddr, logger)

		supervisor := processor.NewSupervisor(backend, aggregator, processor.Config{
			WorkerCount: cfg.Processor.WorkerCount,
			WorkerQuota: cfg.Processor.WorkerQuota,
			SleepDelay:  cfg.Processor.SleepDelay,
		}, logger)

		ctx, stop := signalContext()
		defer stop()
		return supervisor.Run(ctx)
	},
}
