package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/zenfi/core/internal/activation"
	"github.com/zenfi/core/internal/history"
	"github.com/zenfi/core/internal/localstore"
	"github.com/zenfi/core/internal/withdrawal"
)

var (
	withdrawStep           string
	withdrawID             string
	withdrawForm           string
	withdrawActivationForm string
)

func init() {
	withdrawSetCmd.Flags().StringVarP(&withdrawStep, "step", "", "", "wizard step")
	withdrawSetCmd.Flags().StringVarP(&withdrawID, "id", "", "", "withdrawal id")
	withdrawSetCmd.Flags().StringVarP(&withdrawForm, "form", "", "", "withdrawal form data as JSON")
	withdrawSetCmd.Flags().StringVarP(&withdrawActivationForm, "activation-form", "", "", "activation form data as JSON")

	withdrawCmd.AddCommand(withdrawStatusCmd)
	withdrawCmd.AddCommand(withdrawSetCmd)
	withdrawCmd.AddCommand(withdrawClearCmd)
	withdrawCmd.AddCommand(withdrawVerifyCmd)
	rootCmd.AddCommand(withdrawCmd)
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "drive the saved withdrawal wizard",
}

var withdrawStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "print the saved wizard state",
	Args:  cobra.NoArgs,
	RunE:  doWithdrawStatus,
}

var withdrawSetCmd = &cobra.Command{
	Use:   "set",
	Short: "update the saved wizard state",
	Args:  cobra.NoArgs,
	RunE:  doWithdrawSet,
}

var withdrawClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "forget the saved wizard",
	Args:  cobra.NoArgs,
	RunE:  doWithdrawClear,
}

var withdrawVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "check the activation payment and advance the wizard",
	Args:  cobra.NoArgs,
	RunE:  doWithdrawVerify,
}

func loadFlow(ctx context.Context) (*localstore.Store, *withdrawal.Flow, error) {
	state, err := openState()
	if err != nil {
		return nil, nil, err
	}

	flow, err := withdrawal.Load(ctx, state.KV())
	if err != nil {
		state.Close()
		return nil, nil, fmt.Errorf("withdrawal.Load: %w", err)
	}

	return state, flow, nil
}

func printFlow(s withdrawal.State) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func doWithdrawStatus(cmd *cobra.Command, args []string) error {
	state, flow, err := loadFlow(cmd.Context())
	if err != nil {
		return err
	}
	defer state.Close()

	return printFlow(flow.State())
}

func doWithdrawSet(cmd *cobra.Command, args []string) error {
	var (
		ctx   = cmd.Context()
		flags = cmd.Flags()
		u     withdrawal.Update
	)

	if flags.Changed("step") {
		u.Step = withdrawal.StepPtr(withdrawal.Step(withdrawStep))
	}
	if flags.Changed("id") {
		u.WithdrawalID = withdrawal.StringPtr(withdrawID)
	}
	if flags.Changed("form") {
		if !json.Valid([]byte(withdrawForm)) {
			return fmt.Errorf("--form is not valid JSON")
		}
		u.FormData = json.RawMessage(withdrawForm)
	}
	if flags.Changed("activation-form") {
		if !json.Valid([]byte(withdrawActivationForm)) {
			return fmt.Errorf("--activation-form is not valid JSON")
		}
		u.ActivationFormData = json.RawMessage(withdrawActivationForm)
	}

	state, flow, err := loadFlow(ctx)
	if err != nil {
		return err
	}
	defer state.Close()

	next, err := flow.Update(ctx, u)
	if err != nil {
		return err
	}

	return printFlow(next)
}

func doWithdrawClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	state, flow, err := loadFlow(ctx)
	if err != nil {
		return err
	}
	defer state.Close()

	return flow.Clear(ctx)
}

func doWithdrawVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	api, err := apiClient()
	if err != nil {
		return err
	}

	state, flow, err := loadFlow(ctx)
	if err != nil {
		return err
	}
	defer state.Close()

	next, err := verifyActivation(ctx, api, flow, history.New(state.KV()), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "step: %s\n", next.Step)
	return nil
}

type activationAPI interface {
	GetActivation(ctx context.Context, withdrawalID string) (*activation.Activation, error)
	CreateActivation(ctx context.Context, withdrawalID string) (*activation.Activation, error)
}

// verifyActivation moves the wizard on from the activation invoice:
// paid goes to processing, unpaid to payment-not-confirmed. A missing or
// expired invoice is replaced and the wizard returns to payment-details.
// Invoices to pay are printed to w.
func verifyActivation(ctx context.Context, api activationAPI, flow *withdrawal.Flow, hist *history.History, w io.Writer) (withdrawal.State, error) {
	withdrawalID := flow.State().WithdrawalID
	if withdrawalID == "" {
		return withdrawal.State{}, fmt.Errorf("no withdrawal in progress. set one with 'withdraw set --id'")
	}

	if _, err := advance(ctx, flow, withdrawal.StepVerifyingPayment); err != nil {
		return withdrawal.State{}, err
	}

	a, err := api.GetActivation(ctx, withdrawalID)
	switch {
	case err == nil:
		_, err = hist.Append(ctx, history.Entry{
			Kind:      history.KindActivation,
			Amount:    decimal.NewFromInt(int64(a.Sats)),
			Reference: withdrawalID,
		})
		if err != nil {
			debugf("history append: %v\n", err)
		}
		return advance(ctx, flow, withdrawal.StepProcessing)

	case errors.Is(err, activation.ErrActivationUnpaid):
		if a != nil {
			printInvoice(w, a)
		}
		return advance(ctx, flow, withdrawal.StepPaymentNotConfirmed)

	case errors.Is(err, activation.ErrActivationNotFound), errors.Is(err, activation.ErrActivationExpired):
		a, err := api.CreateActivation(ctx, withdrawalID)
		if err != nil {
			// Back to payment-details so verify can be re-run.
			advance(ctx, flow, withdrawal.StepPaymentDetails)
			return flow.State(), fmt.Errorf("api.CreateActivation: %w", err)
		}
		printInvoice(w, a)
		return advance(ctx, flow, withdrawal.StepPaymentDetails)

	default:
		advance(ctx, flow, withdrawal.StepPaymentDetails)
		return flow.State(), fmt.Errorf("api.GetActivation: %w", err)
	}
}

func advance(ctx context.Context, flow *withdrawal.Flow, step withdrawal.Step) (withdrawal.State, error) {
	return flow.Update(ctx, withdrawal.Update{Step: withdrawal.StepPtr(step)})
}

func printInvoice(w io.Writer, a *activation.Activation) {
	fmt.Fprintf(w, "pay %d sats before %s\n%s\n", a.Sats, a.ExpiresAt.Local().Format("15:04"), a.LightningInvoice)
}
