package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/zenfi/core/internal/records"
)

var (
	paymentReceipt  string
	paymentStatuses []string
)

func init() {
	paymentCreateCmd.Flags().StringVarP(&paymentReceipt, "receipt", "r", "", "receipt file to upload with the payment")
	paymentListCmd.Flags().StringSliceVarP(&paymentStatuses, "status", "s", nil, "only list payments in these statuses")

	paymentCmd.AddCommand(paymentCreateCmd)
	paymentCmd.AddCommand(paymentListCmd)
	paymentCmd.AddCommand(paymentSetStatusCmd)
	rootCmd.AddCommand(paymentCmd)
}

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "manage payments",
}

var paymentCreateCmd = &cobra.Command{
	Use:   "create <amount>",
	Short: "create a pending payment",
	Args:  cobra.ExactArgs(1),
	RunE:  doPaymentCreate,
}

var paymentListCmd = &cobra.Command{
	Use:   "list",
	Short: "list your payments",
	Args:  cobra.NoArgs,
	RunE:  doPaymentList,
}

var paymentSetStatusCmd = &cobra.Command{
	Use:   "set-status <payment-id> <status>",
	Short: "record the review decision on a payment (admins only)",
	Args:  cobra.ExactArgs(2),
	RunE:  doPaymentSetStatus,
}

func doPaymentCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	amount, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[0], err)
	}

	s, err := newReceiptStack()
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.api.CreatePayment(ctx, amount)
	if err != nil {
		return fmt.Errorf("api.CreatePayment: %w", err)
	}
	fmt.Printf("created payment %s (%s)\n", p.ID, p.Amount)

	if paymentReceipt == "" {
		s.appendHistory(ctx, p.ID, p.Amount)
		return nil
	}

	ownerID, err := requireUser()
	if err != nil {
		return err
	}

	f, err := readReceipt(paymentReceipt)
	if err != nil {
		return err
	}

	return s.submit(ctx, ownerID, p.ID, f)
}

func doPaymentList(cmd *cobra.Command, args []string) error {
	api, err := apiClient()
	if err != nil {
		return err
	}

	var statuses []records.PaymentStatus
	for _, s := range paymentStatuses {
		status := records.PaymentStatus(s)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", s)
		}
		statuses = append(statuses, status)
	}

	payments, err := api.ListPayments(cmd.Context(), statuses...)
	if err != nil {
		return err
	}

	fmt.Printf("ID\tAmount\tStatus\tReceipt\tCreated\n")
	for _, p := range payments {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", p.ID, p.Amount, p.Status, p.ReceiptStatus, p.CreatedAt.Local().Format("2006-01-02 15:04"))
	}

	return nil
}

func doPaymentSetStatus(cmd *cobra.Command, args []string) error {
	status := records.PaymentStatus(args[1])
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", args[1])
	}

	api, err := apiClient()
	if err != nil {
		return err
	}

	return api.SetPaymentStatus(cmd.Context(), args[0], status)
}
