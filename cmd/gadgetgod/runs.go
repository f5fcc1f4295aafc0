package main

import (
	"fmt"
	"os"

	"github.com/sigreer/gadgetgod/internal/config"
	"github.com/sigreer/gadgetgod/internal/journal"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List journaled composition runs",
	Long: `Without arguments lists recent runs, newest first. With a run ID shows
that run's recorded state transitions.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRuns,
}

func init() {
	runsCmd.Flags().IntP("limit", "n", 20, "number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	if len(args) == 1 {
		ts, err := j.Transitions(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading transitions: %v\n", err)
			os.Exit(1)
		}
		if len(ts) == 0 {
			fmt.Printf("No transitions recorded for run %s\n", args[0])
			return
		}
		for _, t := range ts {
			fmt.Printf("%s  %s\n", t.Timestamp.Format("2006-01-02 15:04:05"), t.State)
		}
		return
	}

	runs, err := j.RecentRuns(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading runs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No runs journaled")
		return
	}

	fmt.Printf("%-36s  %-19s  %-16s  %s\n", "RUN", "STARTED", "FINAL STATE", "BACKING FILE")
	for _, r := range runs {
		state := "-"
		if r.FinalState != nil {
			state = *r.FinalState
		}
		fmt.Printf("%-36s  %-19s  %-16s  %s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), state, r.BackingFile)
		if r.Error != nil {
			fmt.Printf("%38s%s\n", "", *r.Error)
		}
	}
}
