package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type ExecutionRow struct {
	ID         string `json:"id"`
	WorkloadID string `json:"workload_id"`
	SessionID  string `json:"session_id,omitempty"`
	Command    string `json:"command"`
	Kind       string `json:"kind"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type LogLineRow struct {
	LineNumber int    `json:"line_number"`
	Stream     string `json:"stream"`
	Content    string `json:"content"`
}

type tailFrame struct {
	ExecutionID string `json:"execution_id"`
	LineNumber  int    `json:"line_number"`
	Stream      string `json:"stream"`
	Content     string `json:"content"`
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Execution log commands",
}

var logsExecsCmd = &cobra.Command{
	Use:   "executions <workload-ref>",
	Short: "List a workload's command executions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp struct {
			Executions []ExecutionRow `json:"executions"`
		}
		if err := client.Get("/v1/workloads/"+args[0]+"/executions", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Executions)
	},
}

var logsGetCmd = &cobra.Command{
	Use:   "get <execution-id>",
	Short: "Print the full ordered log of one execution",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp struct {
			Lines []LogLineRow `json:"lines"`
		}
		if err := client.Get("/v1/executions/"+args[0]+"/logs", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, l := range resp.Lines {
			fmt.Printf("%6d %-6s %s\n", l.LineNumber, l.Stream, l.Content)
		}
	},
}

var logsTailCmd = &cobra.Command{
	Use:   "tail <workload-ref>",
	Short: "Stream live log lines over a websocket",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wsURL, err := tailURL(apiURL, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-interrupt
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
			os.Exit(0)
		}()

		for {
			var frame tailFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%-6s %s\n", frame.Stream, frame.Content)
		}
	},
}

func tailURL(base, ref string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/workloads/" + ref + "/logs/tail"
	return u.String(), nil
}

func init() {
	logsCmd.AddCommand(logsExecsCmd, logsGetCmd, logsTailCmd)
	rootCmd.AddCommand(logsCmd)
}
