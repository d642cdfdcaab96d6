package zbd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	zebedee "github.com/zebedeeio/go-sdk"

	"github.com/zenfi/core/internal/activation"
)

const defaultExpiresIn = 30 * time.Minute

func New(apiKey, chargeCallbackURL string) (*Client, error) {
	return &Client{
		Client:            zebedee.New(apiKey),
		chargeCallbackURL: chargeCallbackURL,
	}, nil
}

type Client struct {
	*zebedee.Client
	chargeCallbackURL string
}

func (c *Client) CreateInvoice(ctx context.Context, a activation.Activation) (*activation.Invoice, error) {
	expiresIn, err := a.ExpiresIn(time.Now(), defaultExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("activation %s: %w", a.WithdrawalID, err)
	}

	invoice, err := c.Charge(&zebedee.Charge{
		InternalID:  a.WithdrawalID,
		Amount:      strconv.Itoa(a.Sats * 1000), // millisats
		Description: fmt.Sprintf("ZenFi withdrawal activation %s", a.WithdrawalID),
		ExpiresIn:   int64(expiresIn.Seconds()),
		CallbackURL: c.chargeCallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("Charge: %w", err)
	}

	return &activation.Invoice{
		ID:               invoice.ID,
		LightningInvoice: invoice.Invoice.Request,
	}, nil
}

func (c *Client) IsInvoicePaid(ctx context.Context, id string) (bool, error) {
	invoice, err := c.GetCharge(id)
	if err != nil {
		return false, fmt.Errorf("GetCharge: %w", err)
	}

	return invoice.Status == "completed", nil
}
