package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/zenfi/core/internal/client"
	"github.com/zenfi/core/internal/history"
	"github.com/zenfi/core/internal/localstore"
	"github.com/zenfi/core/internal/mimes"
	"github.com/zenfi/core/internal/receipt"
	"github.com/zenfi/core/internal/transport"
)

func init() {
	receiptCmd.AddCommand(receiptUploadCmd)
	receiptCmd.AddCommand(receiptRetryCmd)
	receiptCmd.AddCommand(receiptDraftCmd)
	receiptCmd.AddCommand(receiptPromoteCmd)
	receiptCmd.AddCommand(receiptDraftsCmd)
	rootCmd.AddCommand(receiptCmd)
}

var receiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "upload and recover payment receipts",
}

var receiptUploadCmd = &cobra.Command{
	Use:   "upload <payment-id> <file>",
	Short: "upload a receipt for a payment",
	Args:  cobra.ExactArgs(2),
	RunE:  doReceiptUpload,
}

var receiptRetryCmd = &cobra.Command{
	Use:   "retry <payment-id>",
	Short: "retry a failed upload from the cached receipt",
	Args:  cobra.ExactArgs(1),
	RunE:  doReceiptRetry,
}

var receiptDraftCmd = &cobra.Command{
	Use:   "draft <draft-id> <file>",
	Short: "cache a receipt before its payment exists",
	Args:  cobra.ExactArgs(2),
	RunE:  doReceiptDraft,
}

var receiptPromoteCmd = &cobra.Command{
	Use:   "promote <draft-id> <payment-id>",
	Short: "attach a drafted receipt to a payment and upload it",
	Args:  cobra.ExactArgs(2),
	RunE:  doReceiptPromote,
}

var receiptDraftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "list receipts cached as drafts",
	Args:  cobra.NoArgs,
	RunE:  doReceiptDrafts,
}

// receiptStack wires the receipt pipeline against the api and the local
// state file.
type receiptStack struct {
	state   *localstore.Store
	api     *client.Client
	orch    *receipt.Orchestrator
	service *receipt.Service
	history *history.History
}

func newReceiptStack() (*receiptStack, error) {
	api, err := apiClient()
	if err != nil {
		return nil, err
	}

	state, err := openState()
	if err != nil {
		return nil, err
	}

	orch := receipt.NewOrchestrator(api, api, transport.New(nil), cfg.StallTimeout)
	orch.OnProgress = func(paymentID string, p transport.Progress) {
		debugf("upload %s: %d/%d bytes\n", paymentID, p.Sent, p.Total)
	}

	return &receiptStack{
		state:   state,
		api:     api,
		orch:    orch,
		service: receipt.NewService(orch, state.Blobs(), cfg.UploadTimeout),
		history: history.New(state.KV()),
	}, nil
}

func (s *receiptStack) Close() error {
	return s.state.Close()
}

// submit uploads f for paymentID and records it in the history.
func (s *receiptStack) submit(ctx context.Context, ownerID, paymentID string, f receipt.File) error {
	p, err := s.api.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("api.GetPayment: %w", err)
	}

	res, err := s.service.Submit(ctx, ownerID, paymentID, f)
	if err != nil {
		return uploadError(paymentID, err)
	}

	s.appendHistory(ctx, p.ID, p.Amount)
	fmt.Printf("uploaded %s\n%s\n", res.Path, res.URL)
	return nil
}

func (s *receiptStack) appendHistory(ctx context.Context, paymentID string, amount decimal.Decimal) {
	e := history.Entry{
		Kind:      history.KindPayment,
		Amount:    amount,
		Reference: paymentID,
	}
	if _, err := s.history.Append(ctx, e); err != nil {
		debugf("history append: %v\n", err)
	}
}

// uploadError points at `receipt retry` when the upload failed in a way
// worth retrying with the cached bytes.
func uploadError(paymentID string, err error) error {
	if transport.IsTransient(err) {
		return fmt.Errorf("upload: %w (receipt cached, run `zenfictl receipt retry %s`)", err, paymentID)
	}
	return fmt.Errorf("upload: %w", err)
}

func readReceipt(path string) (receipt.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return receipt.File{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return receipt.File{}, err
	}

	mimetype := mimes.FromFilename(path)
	if mimetype == "" {
		mimetype = http.DetectContentType(data)
	}

	return receipt.File{
		Name:         filepath.Base(path),
		MimeType:     mimetype,
		Data:         data,
		LastModified: info.ModTime(),
	}, nil
}

func doReceiptUpload(cmd *cobra.Command, args []string) error {
	ownerID, err := requireUser()
	if err != nil {
		return err
	}

	f, err := readReceipt(args[1])
	if err != nil {
		return err
	}

	s, err := newReceiptStack()
	if err != nil {
		return err
	}
	defer s.Close()

	return s.submit(cmd.Context(), ownerID, args[0], f)
}

func doReceiptRetry(cmd *cobra.Command, args []string) error {
	ownerID, err := requireUser()
	if err != nil {
		return err
	}

	s, err := newReceiptStack()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.service.Retry(cmd.Context(), ownerID, args[0])
	if err != nil {
		return uploadError(args[0], err)
	}

	fmt.Printf("uploaded %s\n%s\n", res.Path, res.URL)
	return nil
}

func doReceiptDraft(cmd *cobra.Command, args []string) error {
	f, err := readReceipt(args[1])
	if err != nil {
		return err
	}

	state, err := openState()
	if err != nil {
		return err
	}
	defer state.Close()

	if err := receipt.SaveReceiptForDraft(cmd.Context(), state.Blobs(), args[0], f); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}

	fmt.Printf("cached %s as draft %s\n", f.Name, args[0])
	return nil
}

func doReceiptPromote(cmd *cobra.Command, args []string) error {
	var (
		ctx       = cmd.Context()
		draftID   = args[0]
		paymentID = args[1]
	)

	ownerID, err := requireUser()
	if err != nil {
		return err
	}

	s, err := newReceiptStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := receipt.PromoteDraft(ctx, s.state.Blobs(), draftID, paymentID); err != nil {
		return err
	}

	res, err := s.service.Retry(ctx, ownerID, paymentID)
	if err != nil {
		return uploadError(paymentID, err)
	}

	fmt.Printf("uploaded %s\n%s\n", res.Path, res.URL)
	return nil
}

type draftCache interface {
	Keys(ctx context.Context, kind string) ([]string, error)
	Get(ctx context.Context, key string) *localstore.StoredBlob
}

func doReceiptDrafts(cmd *cobra.Command, args []string) error {
	state, err := openState()
	if err != nil {
		return err
	}
	defer state.Close()

	return listDrafts(cmd.Context(), state.Blobs(), cmd.OutOrStdout())
}

// listDrafts prints one line per cached draft, newest first.
func listDrafts(ctx context.Context, cache draftCache, w io.Writer) error {
	keys, err := cache.Keys(ctx, localstore.KindDraft)
	if err != nil {
		return fmt.Errorf("Keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Fprintln(w, "no drafts")
		return nil
	}

	for _, key := range keys {
		blob := cache.Get(ctx, key)
		if blob == nil {
			continue
		}

		id := strings.TrimPrefix(key, localstore.KindDraft+":")
		fmt.Fprintf(w, "%s\t%s\t%s\t%d bytes\t%s\n",
			id, blob.Filename, blob.MimeType, len(blob.Data), blob.LastModified.Format(time.RFC3339))
	}

	return nil
}
