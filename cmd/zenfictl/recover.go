package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenfi/core/internal/receipt"
)

var (
	recoverWatch    bool
	recoverInterval time.Duration
)

func init() {
	recoverCmd.Flags().BoolVarP(&recoverWatch, "watch", "w", false, "keep scanning until interrupted")
	recoverCmd.Flags().DurationVarP(&recoverInterval, "interval", "", 30*time.Second, "scan interval with --watch")

	rootCmd.AddCommand(recoverCmd)
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "settle a receipt upload left in uploading",
	Args:  cobra.NoArgs,
	RunE:  doRecover,
}

func doRecover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ownerID, err := requireUser()
	if err != nil {
		return err
	}

	s, err := newReceiptStack()
	if err != nil {
		return err
	}
	defer s.Close()

	rec := receipt.NewRecoverer(s.api, s.api, s.state.Blobs(), s.orch, cfg.UploadTimeout)

	printOutcome(receipt.TriggerMount, rec.Recover(ctx, ownerID))
	if !recoverWatch {
		return nil
	}

	sched := receipt.NewScheduler(rec, ownerID)
	sched.OnOutcome = printOutcome

	if err := sched.Run(ctx, recoverInterval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printOutcome(t receipt.Trigger, o receipt.Outcome) {
	fmt.Printf("%s\t%s\t%s\n", time.Now().Format(time.TimeOnly), t, o)
}
