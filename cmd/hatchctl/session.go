package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type SessionRow struct {
	ID          string `json:"id"`
	WorkloadID  string `json:"workload_id"`
	SessionUUID string `json:"session_uuid"`
	Diff        string `json:"diff,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type SessionListResponse struct {
	Sessions []SessionRow `json:"sessions"`
}

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sess"},
	Short:   "Agent session commands",
}

var sessCreateCmd = &cobra.Command{
	Use:   "create <workload-ref>",
	Short: "Open a new agent session on a workload",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var sess SessionRow
		if err := client.Post("/v1/workloads/"+args[0]+"/sessions", nil, &sess); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session %s created (uuid %s).\n", sess.ID, sess.SessionUUID)
	},
}

var sessListCmd = &cobra.Command{
	Use:   "list <workload-ref>",
	Short: "List a workload's sessions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp SessionListResponse
		if err := client.Get("/v1/workloads/"+args[0]+"/sessions", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Sessions)
	},
}

var sessGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Get session details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var sess SessionRow
		if err := client.Get("/v1/sessions/"+args[0], &sess); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(sess)
	},
}

var sessDiffCmd = &cobra.Command{
	Use:   "diff <session-id>",
	Short: "Print the diff captured after the last turn",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var sess SessionRow
		if err := client.Get("/v1/sessions/"+args[0], &sess); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if sess.Diff == "" {
			fmt.Println("No diff captured.")
			return
		}
		fmt.Println(sess.Diff)
	},
}

var sessPromptCmd = &cobra.Command{
	Use:   "prompt <session-id> <prompt...>",
	Short: "Enqueue one agent turn",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		req := map[string]string{"prompt": strings.Join(args[1:], " ")}
		if err := client.Post("/v1/sessions/"+args[0]+"/prompt", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Prompt task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
		fmt.Printf("Follow output: hatchctl logs tail <workload-ref>\n")
	},
}

func init() {
	sessionCmd.AddCommand(sessCreateCmd, sessListCmd, sessGetCmd, sessDiffCmd, sessPromptCmd)
	rootCmd.AddCommand(sessionCmd)
}
