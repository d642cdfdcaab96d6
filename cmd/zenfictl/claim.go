package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/zenfi/core/internal/cooldown"
	"github.com/zenfi/core/internal/history"
	"github.com/zenfi/core/internal/localstore"
)

var (
	claimAmount   string
	cooldownWatch bool
	cooldownLocal bool
)

func init() {
	claimCmd.Flags().StringVarP(&claimAmount, "amount", "", "0", "claimed amount to record in the history")
	cooldownStatusCmd.Flags().BoolVarP(&cooldownWatch, "watch", "w", false, "count down until a claim is possible")
	cooldownCmd.PersistentFlags().BoolVarP(&cooldownLocal, "local", "", false, "ignore the remote deadline")

	cooldownCmd.AddCommand(cooldownStatusCmd)
	cooldownCmd.AddCommand(cooldownResetCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(cooldownCmd)
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "claim and start the cooldown",
	Args:  cobra.NoArgs,
	RunE:  doClaim,
}

var cooldownCmd = &cobra.Command{
	Use:   "cooldown",
	Short: "inspect the claim cooldown",
}

var cooldownStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the time left before the next claim",
	Args:  cobra.NoArgs,
	RunE:  doCooldownStatus,
}

var cooldownResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "end the cooldown locally and remotely",
	Args:  cobra.NoArgs,
	RunE:  doCooldownReset,
}

// startTimer opens the local state and starts a reconciled cooldown timer.
// The caller closes both.
func startTimer(ctx context.Context) (*localstore.Store, *cooldown.Timer, error) {
	state, err := openState()
	if err != nil {
		return nil, nil, err
	}

	var timer *cooldown.Timer
	if cooldownLocal {
		timer = cooldown.New(state.KV(), nil)
	} else {
		api, err := apiClient()
		if err != nil {
			state.Close()
			return nil, nil, err
		}
		timer = cooldown.New(state.KV(), api)
	}

	if err := timer.Start(ctx); err != nil {
		state.Close()
		return nil, nil, fmt.Errorf("timer.Start: %w", err)
	}

	return state, timer, nil
}

func doClaim(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	amount, err := decimal.NewFromString(claimAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", claimAmount, err)
	}

	state, timer, err := startTimer(ctx)
	if err != nil {
		return err
	}
	defer state.Close()
	defer timer.Close()

	if err := timer.Claim(ctx); err != nil {
		return err
	}

	_, err = history.New(state.KV()).Append(ctx, history.Entry{
		Kind:   history.KindClaim,
		Amount: amount,
	})
	if err != nil {
		debugf("history append: %v\n", err)
	}

	fmt.Printf("claimed. next claim in %s\n", timer.State().RemainingTime)
	return nil
}

func doCooldownStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	state, timer, err := startTimer(ctx)
	if err != nil {
		return err
	}
	defer state.Close()
	defer timer.Close()

	s := timer.State()
	if !cooldownWatch || s.CanClaim {
		printCooldown(s)
		return nil
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for !s.CanClaim {
		fmt.Printf("\r%s ", s.RemainingTime)
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-ticker.C:
		}
		s = timer.State()
	}
	fmt.Println()
	printCooldown(s)

	return nil
}

func printCooldown(s cooldown.State) {
	if s.CanClaim {
		fmt.Println("ready to claim")
		return
	}
	fmt.Printf("next claim in %s\n", s.RemainingTime)
}

func doCooldownReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	state, timer, err := startTimer(ctx)
	if err != nil {
		return err
	}
	defer state.Close()
	defer timer.Close()

	return timer.Reset(ctx)
}
