package activation

import (
	"context"
)

type mockActivationRepo struct {
	CreateActivationActivation *Activation
	CreateActivationErr        error
	GetActivationActivation    *Activation
	GetActivationErr           error
	UpdateActivationStatusErr  error

	updatedInvoice string
	updatedStatus  Status
}

func (m *mockActivationRepo) CreateActivation(ctx context.Context, a Activation) (*Activation, error) {
	if m.CreateActivationActivation == nil && m.CreateActivationErr == nil {
		return &a, nil
	}
	return m.CreateActivationActivation, m.CreateActivationErr
}
func (m *mockActivationRepo) GetActivation(ctx context.Context, withdrawalID string) (*Activation, error) {
	return m.GetActivationActivation, m.GetActivationErr
}
func (m *mockActivationRepo) UpdateActivationStatus(ctx context.Context, invoiceID string, status Status) error {
	m.updatedInvoice = invoiceID
	m.updatedStatus = status
	return m.UpdateActivationStatusErr
}

type mockLNProvider struct {
	CreateInvoiceInvoice *Invoice
	CreateInvoiceErr     error
	IsInvoicePaidBool    bool
	IsInvoicePaidErr     error
}

func (m *mockLNProvider) CreateInvoice(ctx context.Context, a Activation) (*Invoice, error) {
	return m.CreateInvoiceInvoice, m.CreateInvoiceErr
}
func (m *mockLNProvider) IsInvoicePaid(ctx context.Context, id string) (bool, error) {
	return m.IsInvoicePaidBool, m.IsInvoicePaidErr
}
