package cmd

import (
	"github.com/spf13/cobra"

	"errorwatch/notify"
	"errorwatch/triggers"
	"errorwatch/watcher"
)

var (
	watcherOnce          bool
	watcherDryRun        bool
	watcherConsoleAlerts bool
)

var watcherCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Periodically evaluate alert rules against issue aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rules, err := triggers.Load(cfg.Triggers.File)
		if err != nil {
			return err
		}
		logger.Infof("Loaded %d trigger rules from %s", len(rules), cfg.Triggers.File)

		var backend notify.AlertBackend
		if watcherConsoleAlerts {
			backend = notify.NewConsoleBackend()
		} else {
			backend, err = notify.NewSESBackend(notify.SESConfig{
				FromAddress: cfg.Email.FromAddress,
				Region:      cfg.Email.Region,
				EndpointURL: cfg.Email.EndpointURL,
				VerifyEmail: cfg.Email.VerifyEmail,
			}, logger)
			if err != nil {
				return err
			}
		}

		if watcherDryRun {
			logger.Info("Dry run: no run state or alert records will be written")
		}

		dispatcher := watcher.NewDispatcher(store, backend, watcherDryRun, logger)
		health := watcher.NewHealthReporter(cfg.Metrics.CounterName, cfg.Metrics.PushGateway, logger)
		w := watcher.New(store, rules, dispatcher, health, watcher.Config{
			SleepDelay: cfg.Watcher.SleepDelay,
			DryRun:     watcherDryRun,
		}, logger)

		ctx, stop := signalContext()
		defer stop()
		return w.Run(ctx, watcherOnce)
	},
}

func init() {
	watcherCmd.Flags().BoolVar(&watcherOnce, "once", false, "run a single evaluation cycle and exit")
	watcherCmd.Flags().BoolVar(&watcherDryRun, "dry-run", false, "evaluate without persisting run state or alert records")
	watcherCmd.Flags().BoolVar(&watcherConsoleAlerts, "console-alerts", false, "print alerts to stdout instead of sending email")
}
