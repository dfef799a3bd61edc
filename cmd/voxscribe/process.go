package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const listLimit = 50

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <recording-id|file>",
		Short: "Process one recording end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			target := args[0]

			if info, err := os.Stat(target); err == nil && !info.IsDir() {
				return a.runner.ProcessFile(ctx, target)
			}

			if a.plaud == nil {
				return fmt.Errorf("no local file %s and no Plaud token configured", target)
			}
			recs, err := a.plaud.ListRecordings(ctx, listLimit)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				if rec.ID == target {
					return a.runner.ProcessRecording(ctx, rec)
				}
			}
			return fmt.Errorf("recording %s not found", target)
		},
	}
}

func recordingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recordings",
		Short: "List recordings from the Plaud API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			if a.plaud == nil {
				return fmt.Errorf("no Plaud token configured")
			}
			recs, err := a.plaud.ListRecordings(ctx, listLimit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILE\tDURATION\tSTATUS")
			for _, rec := range recs {
				secs := rec.Duration / 1000
				fmt.Fprintf(w, "%s\t%s\t%02d:%02d\t%s\n",
					rec.ID, rec.Filename, secs/60, secs%60, a.statuses.Get(rec.ID).Status)
			}
			return w.Flush()
		},
	}
}
