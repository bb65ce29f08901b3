package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

func printResult(v interface{}) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []WorkloadRow:
		if len(data) == 0 {
			fmt.Println("No workloads found.")
			return
		}
		fmt.Fprintln(w, "SLUG\tKIND\tSTATE\tEXPOSED\tPROVIDER\tIP\tCREATED")
		for _, wl := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n", wl.Slug, wl.Kind, wl.State, wl.Exposed, wl.Provider, wl.ServerIP, wl.CreatedAt)
		}
	case WorkloadRow:
		fmt.Fprintf(w, "ID:\t%s\n", data.ID)
		fmt.Fprintf(w, "Slug:\t%s\n", data.Slug)
		fmt.Fprintf(w, "Kind:\t%s\n", data.Kind)
		fmt.Fprintf(w, "State:\t%s\n", data.State)
		fmt.Fprintf(w, "Exposed:\t%t\n", data.Exposed)
		fmt.Fprintf(w, "Provider:\t%s\n", data.Provider)
		fmt.Fprintf(w, "Repo:\t%s@%s\n", data.RepoURL, data.Branch)
		if data.ServerIP != "" {
			fmt.Fprintf(w, "Server IP:\t%s\n", data.ServerIP)
		}
		fmt.Fprintf(w, "Created:\t%s\n", data.CreatedAt)
	case []SessionRow:
		if len(data) == 0 {
			fmt.Println("No sessions found.")
			return
		}
		fmt.Fprintln(w, "SESSION ID\tUUID\tCREATED")
		for _, s := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.SessionUUID, s.CreatedAt)
		}
	case []ExecutionRow:
		if len(data) == 0 {
			fmt.Println("No executions found.")
			return
		}
		fmt.Fprintln(w, "EXECUTION ID\tKIND\tEXIT\tCOMMAND\tSTARTED")
		for _, e := range data {
			exit := "-"
			if e.ExitCode != nil {
				exit = fmt.Sprintf("%d", *e.ExitCode)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID[:8], e.Kind, exit, truncate(e.Command, 40), e.StartedAt)
		}
	case []TaskRow:
		if len(data) == 0 {
			fmt.Println("No tasks found.")
			return
		}
		fmt.Fprintln(w, "TASK ID\tOP\tSTATUS\tATTEMPT\tCREATED")
		for _, t := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n", t.TaskID[:8], t.Op, t.Status, t.Attempt, t.MaxAttempts, t.CreatedAt)
		}
	case TaskRow:
		fmt.Fprintf(w, "Task ID:\t%s\n", data.TaskID)
		fmt.Fprintf(w, "Workload:\t%s\n", data.WorkloadID)
		fmt.Fprintf(w, "Op:\t%s\n", data.Op)
		fmt.Fprintf(w, "Status:\t%s\n", data.Status)
		fmt.Fprintf(w, "Attempt:\t%d/%d\n", data.Attempt, data.MaxAttempts)
		if data.Error != nil {
			fmt.Fprintf(w, "Error:\t%v\n", data.Error)
		}
	case []OrphanRow:
		if len(data) == 0 {
			fmt.Println("No orphans found.")
			return
		}
		fmt.Fprintln(w, "PROVIDER\tNAME\tSLUG\tREASON")
		for _, o := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Provider, o.Name, o.Slug, o.Reason)
		}
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
