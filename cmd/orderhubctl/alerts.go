package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Work with smart alerts",
}

var alertsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger an alert generation cycle now",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := apiRequest(http.MethodPost, "/alerts/run", nil)
		if err != nil {
			fmt.Printf("Error connecting to notifier: %v\n", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("Alert run failed: %s\n", resp.Status)
			return
		}

		var summary struct {
			AlertsGenerated int      `json:"alerts_generated"`
			MessagesQueued  int      `json:"messages_queued"`
			Managers        int      `json:"managers"`
			AlertTypes      []string `json:"alert_types"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
			fmt.Printf("Error decoding response: %v\n", err)
			return
		}

		fmt.Printf("Alerts generated: %d\n", summary.AlertsGenerated)
		fmt.Printf("Messages queued:  %d\n", summary.MessagesQueued)
		fmt.Printf("Managers reached: %d\n", summary.Managers)
		if len(summary.AlertTypes) > 0 {
			fmt.Printf("Types: %s\n", strings.Join(summary.AlertTypes, ", "))
		}
	},
}

func init() {
	alertsCmd.AddCommand(alertsRunCmd)
}
