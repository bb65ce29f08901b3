package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hatchery-io/hatchery/internal/remoteexec"
)

var (
	dbType     string
	dbName     string
	dbUser     string
	dbPassword string
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Self-hosted database commands",
}

func dbRef() map[string]string {
	return map[string]string{
		"type":     dbType,
		"name":     dbName,
		"user":     dbUser,
		"password": dbPassword,
	}
}

var dbSQLCmd = &cobra.Command{
	Use:   "sql <workload-ref> <statement...>",
	Short: "Run a statement against the workload's database",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		req := map[string]interface{}{
			"statement": strings.Join(args[1:], " "),
			"database":  dbRef(),
		}
		if err := client.Post("/v1/workloads/"+args[0]+"/db/sql", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("SQL task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
		fmt.Printf("Output: hatchctl logs executions %s\n", args[0])
	},
}

var dbDumpCmd = &cobra.Command{
	Use:   "dump <workload-ref>",
	Short: "Dump the workload's database through the log pipeline",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		req := map[string]interface{}{"database": dbRef()}
		if err := client.Post("/v1/workloads/"+args[0]+"/db/dump", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Dump task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
	},
}

var dbShellCmd = &cobra.Command{
	Use:   "shell <workload-ref>",
	Short: "Print the SSH invocation for an interactive database shell",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var wl WorkloadRow
		if err := client.Get("/v1/workloads/"+args[0], &wl); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if wl.ServerIP == "" {
			fmt.Fprintln(os.Stderr, "Error: workload has no server address yet")
			os.Exit(1)
		}

		shell, err := remoteexec.ShellCommand(remoteexec.DatabaseConfig{
			Type:     remoteexec.DatabaseType(dbType),
			Name:     dbName,
			User:     dbUser,
			Password: dbPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ssh -t %s@%s %q\n", remoteexec.DefaultUser, wl.ServerIP, shell)
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore <workload-ref> <dump-path>",
	Short: "Restore a dump file already present on the host",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		req := map[string]interface{}{
			"dump_path": args[1],
			"database":  dbRef(),
		}
		if err := client.Post("/v1/workloads/"+args[0]+"/db/restore", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restore task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
	},
}

func init() {
	dbCmd.PersistentFlags().StringVar(&dbType, "db-type", "postgres", "Database type (postgres, mysql)")
	dbCmd.PersistentFlags().StringVar(&dbName, "db-name", "app", "Database name")
	dbCmd.PersistentFlags().StringVar(&dbUser, "db-user", "app", "Database user")
	dbCmd.PersistentFlags().StringVar(&dbPassword, "db-password", "", "Database password")
	dbCmd.AddCommand(dbSQLCmd, dbShellCmd, dbDumpCmd, dbRestoreCmd)
	rootCmd.AddCommand(dbCmd)
}
