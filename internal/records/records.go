// Package records holds the types of the remote record store shared by the
// backend and its clients.
package records

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
	PaymentPaid     PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected, PaymentPaid:
		return true
	default:
		return false
	}
}

type ReceiptStatus string

const (
	ReceiptNone      ReceiptStatus = "none"
	ReceiptUploading ReceiptStatus = "uploading"
	ReceiptUploaded  ReceiptStatus = "uploaded"
	ReceiptFailed    ReceiptStatus = "failed"
)

func (s ReceiptStatus) Valid() bool {
	switch s {
	case ReceiptNone, ReceiptUploading, ReceiptUploaded, ReceiptFailed:
		return true
	default:
		return false
	}
}

type Payment struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        PaymentStatus   `db:"status" json:"status"`
	ReceiptStatus ReceiptStatus   `db:"receipt_status" json:"receipt_status"`
	ReceiptURL    string          `db:"receipt_url" json:"receipt_url"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

type CreatePaymentRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// ReceiptUpdate sets a payment's receipt fields. When Expect is set the
// update only applies if the current receipt status equals it.
type ReceiptUpdate struct {
	Status ReceiptStatus `json:"status"`
	URL    *string       `json:"url,omitempty"`
	Expect ReceiptStatus `json:"expect,omitempty"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Profile struct {
	UserID        string     `db:"user_id" json:"user_id"`
	Role          string     `db:"role" json:"role"`
	NextClaimTime *time.Time `db:"next_claim_time" json:"next_claim_time"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
