package nodeless

import (
	"context"
	"fmt"
	"time"

	"github.com/nodeless-io/go-nodeless"

	"github.com/zenfi/core/internal/activation"
)

func New(apiKey, storeID string, testnet bool) (*Client, error) {
	if storeID == "" {
		return nil, fmt.Errorf("must set nodeless store id")
	}

	c, err := nodeless.New(nodeless.Config{
		APIKey:     apiKey,
		UseTestnet: testnet,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		Client:  c,
		storeID: storeID,
	}, nil
}

type Client struct {
	*nodeless.Client
	storeID string
}

func (c *Client) CreateInvoice(ctx context.Context, a activation.Activation) (*activation.Invoice, error) {
	if _, err := a.ExpiresIn(time.Now(), 0); err != nil {
		return nil, fmt.Errorf("activation %s: %w", a.WithdrawalID, err)
	}

	invoice, err := c.CreateStoreInvoice(ctx, nodeless.CreateInvoiceRequest{
		StoreID:  c.storeID,
		Amount:   float64(a.Sats),
		Currency: "SATS",
	})
	if err != nil {
		return nil, fmt.Errorf("CreateStoreInvoice: %w", err)
	}

	return &activation.Invoice{
		ID:               invoice.ID,
		LightningInvoice: invoice.LightningInvoice,
	}, nil
}

// IsInvoicePaid reports whether the store invoice settled. Expired and
// pending invoices are both unpaid; the activation's own ExpiresAt decides
// which one the caller sees.
func (c *Client) IsInvoicePaid(ctx context.Context, id string) (bool, error) {
	status, err := c.GetStoreInvoiceStatus(ctx, c.storeID, id)
	if err != nil {
		return false, fmt.Errorf("GetStoreInvoiceStatus: %w", err)
	}

	return status == nodeless.InvoiceStatusPaid, nil
}
