package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var queueStatus string
var queueLimit int

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the message queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued messages by status",
	Run: func(cmd *cobra.Command, args []string) {
		path := fmt.Sprintf("/queue?status=%s&limit=%d", queueStatus, queueLimit)
		resp, err := apiRequest(http.MethodGet, path, nil)
		if err != nil {
			fmt.Printf("Error connecting to notifier: %v\n", err)
			return
		}
		defer resp.Body.Close()

		var msgs []struct {
			ID               string     `json:"id"`
			RecipientAddress string     `json:"recipient_address"`
			MessageType      string     `json:"message_type"`
			Priority         int        `json:"priority"`
			Status           string     `json:"status"`
			Attempts         int        `json:"attempts"`
			ScheduledFor     *time.Time `json:"scheduled_for"`
			ErrorMessage     string     `json:"error_message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
			fmt.Printf("Error decoding response: %v\n", err)
			return
		}

		if len(msgs) == 0 {
			fmt.Printf("No %s messages.\n", queueStatus)
			return
		}
		for _, m := range msgs {
			sched := "-"
			if m.ScheduledFor != nil {
				sched = m.ScheduledFor.Format(time.DateTime)
			}
			fmt.Printf("%s  p%d  %-22s  %s  attempts=%d  scheduled=%s\n",
				m.ID, m.Priority, m.MessageType, m.RecipientAddress, m.Attempts, sched)
			if m.ErrorMessage != "" {
				fmt.Printf("    last error: %s\n", m.ErrorMessage)
			}
		}
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a message that has not been sent yet",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queueAction(args[0], "cancel")
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Requeue a terminally failed message",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queueAction(args[0], "retry")
	},
}

func queueAction(id, action string) {
	resp, err := apiRequest(http.MethodPost, fmt.Sprintf("/queue/%s/%s", id, action), nil)
	if err != nil {
		fmt.Printf("Error connecting to notifier: %v\n", err)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Printf("Message %s: %s applied.\n", id, action)
	case http.StatusConflict:
		fmt.Printf("Message %s is not in a state that allows %s.\n", id, action)
	default:
		fmt.Printf("Unexpected response: %s\n", resp.Status)
	}
}

func init() {
	queueListCmd.Flags().StringVar(&queueStatus, "status", "pending", "status to filter by")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 50, "maximum messages to list")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueCancelCmd)
	queueCmd.AddCommand(queueRetryCmd)
}
