package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type OrphanRow struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Reason   string `json:"reason"`
}

var orphanCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List provider resources that outlived their workload",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp struct {
			Orphans []OrphanRow `json:"orphans"`
		}
		if err := client.Get("/v1/orphans", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Orphans)
	},
}

func init() {
	rootCmd.AddCommand(orphanCmd)
}
