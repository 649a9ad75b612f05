package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/modelprep"
	"github.com/helixml/modelprep/domain/model"
)

func historyCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [model]",
		Short: "Show past pipeline runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return showHistory(cmd.Context(), cmd.OutOrStdout(), flags, name, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 for all)")

	return cmd
}

func showHistory(ctx context.Context, out io.Writer, flags *globalFlags, name string, limit int) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	client, err := modelprep.New(modelprep.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	runs, err := client.History(ctx, name, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "no runs recorded")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tMODEL\tSTARTED\tDURATION\tSTATE\tSTEPS")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID()), r.Model(), r.StartedAt().Local().Format(time.DateTime),
			runDuration(r), r.State(), stepSummary(r))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(r model.Run) string {
	if r.FinishedAt().IsZero() {
		return "-"
	}
	return r.FinishedAt().Sub(r.StartedAt()).Round(time.Millisecond).String()
}

func stepSummary(r model.Run) string {
	out := ""
	for i, s := range r.Steps() {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", s.Step(), s.State())
	}
	return out
}
