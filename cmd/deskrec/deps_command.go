package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"deskrec/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external dependencies and recording preconditions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, 8)
			for _, st := range deps.CheckSystemDeps(cfg) {
				state := "ok"
				detail := st.Command
				if st.Available {
					if version, err := deps.Version(st.Command); err == nil {
						detail = version
					}
				} else {
					state = "missing"
					detail = st.Detail
				}
				name := st.Name
				if st.Optional {
					name += " (optional)"
				}
				rows = append(rows, []string{name, state, detail})
			}

			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			checks := []deps.Result{
				deps.CheckDisplay(cfg.Capture.Display),
				deps.CheckDirectoryAccess("Output dir", cfg.Paths.OutputDir),
				deps.CheckDirectoryAccess("Work dir", cfg.Paths.WorkDir),
				deps.CheckDiskSpace("Free space", cfg.Paths.OutputDir, minFreeBytes),
			}
			for _, res := range checks {
				state := "ok"
				if !res.Passed {
					state = "failed"
				}
				rows = append(rows, []string{res.Name, state, res.Detail})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{{title: "Check"}, {title: "Status"}, {title: "Detail"}},
				rows,
			))
			return nil
		},
	}
}
