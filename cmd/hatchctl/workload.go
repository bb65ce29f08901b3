package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type WorkloadRow struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Exposed   bool   `json:"exposed"`
	Provider  string `json:"provider"`
	RepoURL   string `json:"repo_url"`
	Branch    string `json:"branch"`
	ServerIP  string `json:"server_ip"`
	CreatedAt string `json:"created_at"`
}

type WorkloadListResponse struct {
	Workloads []WorkloadRow `json:"workloads"`
}

type TaskRef struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_href"`
}

var (
	createKind     string
	createProvider string
	createBranch   string
)

var workloadCmd = &cobra.Command{
	Use:     "workload",
	Aliases: []string{"wl"},
	Short:   "Workload management commands",
}

var wlCreateCmd = &cobra.Command{
	Use:   "create <repo-url>",
	Short: "Create a workload and start provisioning",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		req := map[string]string{
			"kind":     createKind,
			"provider": createProvider,
			"repo_url": args[0],
			"branch":   createBranch,
		}

		var resp struct {
			Workload WorkloadRow `json:"workload"`
			TaskID   string      `json:"task_id"`
		}
		if err := client.Post("/v1/workloads", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Workload %s created, provisioning enqueued.\n", resp.Workload.Slug)
		fmt.Printf("Task ID: %s\n", resp.TaskID)
		fmt.Printf("Check status: hatchctl task get %s\n", resp.TaskID)
	},
}

var wlGetCmd = &cobra.Command{
	Use:   "get <ref>",
	Short: "Get workload details by id or slug",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var wl WorkloadRow
		if err := client.Get("/v1/workloads/"+args[0], &wl); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(wl)
	},
}

var wlListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workloads",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp WorkloadListResponse
		if err := client.Get("/v1/workloads", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Workloads)
	},
}

var wlDestroyCmd = &cobra.Command{
	Use:   "destroy <ref>",
	Short: "Tear down a workload's infrastructure",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		if err := client.Delete("/v1/workloads/"+args[0], &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Teardown task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
	},
}

var wlRetryCmd = &cobra.Command{
	Use:   "retry-provision <ref>",
	Short: "Retry a provision stuck in PROVISIONING",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		if err := client.Post("/v1/workloads/"+args[0]+"/retry-provision", nil, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Retry task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
	},
}

var wlRedeployCmd = &cobra.Command{
	Use:   "redeploy <ref>",
	Short: "Rebuild and roll out a deployed release",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		if err := client.Post("/v1/workloads/"+args[0]+"/redeploy", nil, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Redeploy task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
	},
}

var wlExposeCmd = &cobra.Command{
	Use:   "expose <ref> <on|off>",
	Short: "Toggle public exposure through the tunnel",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if args[1] != "on" && args[1] != "off" {
			fmt.Fprintln(os.Stderr, "Error: second argument must be on or off")
			os.Exit(1)
		}
		client := NewClient(apiURL)

		var wl WorkloadRow
		req := map[string]bool{"exposed": args[1] == "on"}
		if err := client.Post("/v1/workloads/"+args[0]+"/exposure", req, &wl); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Workload %s exposed: %t\n", wl.Slug, wl.Exposed)
	},
}

func init() {
	wlCreateCmd.Flags().StringVar(&createKind, "kind", "sandbox", "Workload kind (sandbox, release)")
	wlCreateCmd.Flags().StringVar(&createProvider, "provider", "hetzner", "Cloud provider key")
	wlCreateCmd.Flags().StringVar(&createBranch, "branch", "", "Git branch (defaults server-side)")
	workloadCmd.AddCommand(wlCreateCmd, wlGetCmd, wlListCmd, wlDestroyCmd, wlRetryCmd, wlRedeployCmd, wlExposeCmd)
	rootCmd.AddCommand(workloadCmd)
}
