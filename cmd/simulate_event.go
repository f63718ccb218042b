package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	simulateFingerprint string
	simulateMessage     string
	simulateUser        string
)

var simulateEventCmd = &cobra.Command{
	Use:   "simulate-event",
	Short: "Publish a synthetic error event for local verification",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openQueue()
		if err != nil {
			return err
		}

		eventID := uuid.NewString()
		body, err := json.Marshal(map[string]any{
			"eventID":      eventID,
			"fingerprints": []string{simulateFingerprint},
			"dateReceived": time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"),
			"user":         map[string]string{"id": simulateUser},
			"message":      simulateMessage,
		})
		if err != nil {
			return fmt.Errorf("building event: %w", err)
		}

		if err := backend.Publish(cmd.Context(), body); err != nil {
			return err
		}
		color.Green("Published event %s for issue %s", eventID, simulateFingerprint)
		return nil
	},
}

func init() {
	simulateEventCmd.Flags().StringVar(&simulateFingerprint, "fingerprint", "simulated-issue", "issue fingerprint for the event")
	simulateEventCmd.Flags().StringVar(&simulateMessage, "message", "Simulated error event", "event message")
	simulateEventCmd.Flags().StringVar(&simulateUser, "user", "", "user id reported on the event (empty for anonymous)")
}
