package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"deskrec/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var prune int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled in the configuration")
			}

			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if cmd.Flags().Changed("prune") {
				removed, err := store.Prune(cmd.Context(), prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d recording(s), kept the newest %d.\n", removed, prune)
				return nil
			}

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No recordings yet.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					strconv.FormatInt(rec.ID, 10),
					rec.StartedAt.Local().Format("2006-01-02 15:04"),
					formatDuration(rec.Duration()),
					rec.AudioPolicy,
					string(rec.Outcome),
					formatSize(rec.VideoBytes),
					filepath.Base(rec.OutputPath),
				})
			}

			fmt.Fprintln(out, renderTable(
				[]column{
					{title: "ID", numeric: true},
					{title: "Started"},
					{title: "Length", numeric: true},
					{title: "Audio"},
					{title: "Outcome"},
					{title: "Size", numeric: true},
					{title: "File"},
				},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show (0 for all)")
	cmd.Flags().IntVar(&prune, "prune", 0, "Delete all but the newest N recordings")

	return cmd
}
