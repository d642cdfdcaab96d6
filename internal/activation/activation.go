// Package activation bills the one-off fee that unlocks a withdrawal. The
// fee is paid over lightning; the withdrawal wizard waits on it in its
// verifying-payment step.
package activation

import (
	"context"
	"fmt"
	"time"
)

func New(repo activationRepo, ln LNProvider, provider string) (*Service, error) {
	return &Service{
		repo:     repo,
		ln:       ln,
		provider: provider,
	}, nil
}

type Service struct {
	repo     activationRepo
	ln       LNProvider
	provider string
}

type activationRepo interface {
	CreateActivation(ctx context.Context, a Activation) (*Activation, error)
	GetActivation(ctx context.Context, withdrawalID string) (*Activation, error)
	UpdateActivationStatus(ctx context.Context, invoiceID string, status Status) error
}

type LNProvider interface {
	CreateInvoice(ctx context.Context, a Activation) (*Invoice, error)
	IsInvoicePaid(ctx context.Context, id string) (bool, error)
}

// GetActivation fetches the latest activation for a withdrawal. Unpaid
// invoices are re-checked with the provider. An error is returned if the
// activation is not found, expired, or still unpaid; the unpaid case also
// returns the activation so callers can show the invoice again.
func (s *Service) GetActivation(ctx context.Context, withdrawalID string) (*Activation, error) {
	a, err := s.repo.GetActivation(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("repo.GetActivation: %w", err)
	}

	if a == nil {
		return nil, ErrActivationNotFound
	}

	if a.Status == StatusPaid {
		return a, nil
	}

	// Has the invoice been paid since we last checked?
	paid, err := s.ln.IsInvoicePaid(ctx, a.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("IsInvoicePaid: %w", err)
	}
	if !paid {
		if a.ExpiresAt.Before(time.Now()) {
			return nil, ErrActivationExpired
		}
		return a, ErrActivationUnpaid
	}

	if err := s.repo.UpdateActivationStatus(ctx, a.InvoiceID, StatusPaid); err != nil {
		return nil, fmt.Errorf("UpdateActivationStatus: %w", err)
	}
	a.Status = StatusPaid
	a.UpdatedAt = time.Now()

	return a, nil
}

func (s *Service) CreateActivation(ctx context.Context, a Activation) (*Activation, error) {
	invoice, err := s.ln.CreateInvoice(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	a.InvoiceID = invoice.ID
	a.Provider = s.provider
	a.Status = StatusUnpaid
	a.LightningInvoice = invoice.LightningInvoice

	created, err := s.repo.CreateActivation(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("CreateActivation: %w", err)
	}

	return created, nil
}

// ConfirmPaid marks an invoice paid once the provider reports it settled.
func (s *Service) ConfirmPaid(ctx context.Context, invoiceID string) error {
	paid, err := s.ln.IsInvoicePaid(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("IsInvoicePaid: %w", err)
	}
	if !paid {
		return ErrActivationUnpaid
	}

	if err := s.repo.UpdateActivationStatus(ctx, invoiceID, StatusPaid); err != nil {
		return fmt.Errorf("UpdateActivationStatus: %w", err)
	}

	return nil
}

type Activation struct {
	ID               string    `db:"id" json:"id"`
	WithdrawalID     string    `db:"withdrawal_id" json:"withdrawal_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	Sats             int       `db:"sats" json:"sats"`
	InvoiceID        string    `db:"invoice_id" json:"invoice_id"`
	Provider         string    `db:"provider" json:"provider"`
	Status           Status    `db:"status" json:"status"`
	LightningInvoice string    `db:"lightning_invoice" json:"lightning_invoice"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ExpiresIn is the invoice lifetime left for a, or def when a carries no
// expiry. An activation already past its expiry is rejected.
func (a Activation) ExpiresIn(now time.Time, def time.Duration) (time.Duration, error) {
	if a.ExpiresAt.IsZero() {
		return def, nil
	}

	d := a.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0, ErrActivationExpired
	}
	return d, nil
}

type Status string

const (
	StatusPaid   Status = "paid"
	StatusUnpaid Status = "unpaid"
)

type Invoice struct {
	ID               string `json:"id"`
	LightningInvoice string `json:"lightning_invoice"`
}
