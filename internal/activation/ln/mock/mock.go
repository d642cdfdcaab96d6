package mock

import (
	"context"

	"github.com/zenfi/core/internal/activation"
)

func New() *Client {
	return &Client{}
}

type Client struct {
}

func (c *Client) CreateInvoice(ctx context.Context, a activation.Activation) (*activation.Invoice, error) {
	return &activation.Invoice{
		ID:               "fake-" + a.WithdrawalID,
		LightningInvoice: "lnbcfake",
	}, nil
}

func (c *Client) IsInvoicePaid(ctx context.Context, id string) (bool, error) {
	if id == "paid" {
		return true, nil
	}

	return false, nil
}
