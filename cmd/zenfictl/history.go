package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenfi/core/internal/history"
)

var (
	historyClear bool
)

func init() {
	historyCmd.Flags().BoolVarP(&historyClear, "clear", "", false, "forget the local history")

	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "show recent local transactions",
	Args:  cobra.NoArgs,
	RunE:  doHistory,
}

func doHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	state, err := openState()
	if err != nil {
		return err
	}
	defer state.Close()

	h := history.New(state.KV())
	if historyClear {
		return h.Clear(ctx)
	}

	entries, err := h.List(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("When\tKind\tAmount\tReference\n")
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\t%s\n", e.At.Local().Format("2006-01-02 15:04"), e.Kind, e.Amount, e.Reference)
	}

	return nil
}
