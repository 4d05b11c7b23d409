package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"deskrec/internal/capture"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List sound cards and their capture capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := capture.ListCards()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(cards) == 0 {
				fmt.Fprintln(out, "No sound cards detected.")
				return nil
			}

			titler := cases.Title(language.English, cases.NoLower)
			rows := make([][]string, 0, len(cards))
			for _, card := range cards {
				rows = append(rows, []string{
					strconv.Itoa(card.Index),
					card.ID,
					titler.String(card.Name),
					yesNo(card.CanCapture),
				})
			}

			fmt.Fprintln(out, renderTable(
				[]column{
					{title: "#", numeric: true},
					{title: "ID"},
					{title: "Name"},
					{title: "Capture"},
				},
				rows,
			))
			return nil
		},
	}
}
