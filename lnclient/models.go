// Package lnclient defines the canonical invoice model and the capability
// interface every node backend adapter implements.
package lnclient

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

const (
	DEFAULT_INVOICE_EXPIRY = 86400

	// DefaultPollInterval is how often the invoice watcher refreshes tracked
	// invoices unless the backend asks for a slower cadence.
	DefaultPollInterval = 5 * time.Second
)

type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "Pending"
	StatusAccepted  InvoiceStatus = "Accepted"
	StatusSettled   InvoiceStatus = "Settled"
	StatusCancelled InvoiceStatus = "Cancelled"
)

// IsTerminal reports whether no further status transitions are possible.
func (s InvoiceStatus) IsTerminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Invoice is the backend-agnostic snapshot of an invoice. A new value is
// produced on every fetch; it is never mutated in place.
type Invoice struct {
	PaymentHash  string        `json:"payment_hash"`
	Bolt11       string        `json:"bolt11"`
	Amount       uint64        `json:"amount"`
	AmountMsat   uint64        `json:"amount_msat"`
	Memo         string        `json:"memo"`
	CreationDate int64         `json:"creation_date"`
	Expiry       int64         `json:"expiry"`
	Settled      bool          `json:"settled"`
	SettleDate   *int64        `json:"settle_date"`
	Preimage     *string       `json:"preimage"`
	Status       InvoiceStatus `json:"status"`
}

type CreateInvoiceParams struct {
	// Amount in the base unit (sat). Exactly one of Amount or AmountMsat
	// must be set.
	Amount     *uint64 `json:"amount"`
	AmountMsat *uint64 `json:"amount_msat"`
	// Exactly one of Description or DescriptionHash must be set.
	Description     *string `json:"description"`
	DescriptionHash *string `json:"description_hash"`
	// Number of seconds the invoice will be valid
	ExpireIn        *int64  `json:"expire_in"`
	FallbackAddress *string `json:"fallback_address"`
	PaymentPreimage *string `json:"payment_preimage"`
	Label           *string `json:"label"`
}

type PayInvoiceParams struct {
	Bolt11 string `json:"bolt11"`
	// Optional amount override for zero-amount invoices. At most one of
	// Amount or AmountMsat may be set.
	Amount     *uint64 `json:"amount"`
	AmountMsat *uint64 `json:"amount_msat"`
}

type PayInvoiceResponse struct {
	Preimage   string `json:"preimage"`
	FeesMsat   uint64 `json:"fees_msat"`
	FeesAmount uint64 `json:"fees_amount"`
}

// LNClient is the shared capability set of every backend adapter.
type LNClient interface {
	CreateInvoice(ctx context.Context, params *CreateInvoiceParams) (*Invoice, error)
	GetInvoice(ctx context.Context, paymentHash string) (*Invoice, error)
	GetPendingInvoices(ctx context.Context) ([]Invoice, error)
	// PollInterval is the watcher cadence the backend can sustain.
	PollInterval() time.Duration
	Shutdown() error
}

// InvoicePayer is implemented by backends exposing send-payment capability.
type InvoicePayer interface {
	PayInvoice(ctx context.Context, params *PayInvoiceParams) (*PayInvoiceResponse, error)
}

// ValidateCreateInvoiceParams enforces the shared creation preconditions
// before any backend call is made.
func ValidateCreateInvoiceParams(params *CreateInvoiceParams) error {
	if params == nil {
		return NewValidationError("missing invoice parameters")
	}
	if params.Amount == nil && params.AmountMsat == nil {
		return NewValidationError("amount or amount_msat must be set")
	}
	if params.Amount != nil && params.AmountMsat != nil {
		return NewValidationError("amount and amount_msat are mutually exclusive")
	}
	if (params.Description == nil) == (params.DescriptionHash == nil) {
		return NewValidationError("either description or description_hash must be set, but not both")
	}
	return nil
}

// ValidatePayInvoiceParams enforces the pay preconditions before any
// backend call is made.
func ValidatePayInvoiceParams(params *PayInvoiceParams) error {
	if params == nil || params.Bolt11 == "" {
		return NewValidationError("bolt11 must be set")
	}
	if params.Amount != nil && params.AmountMsat != nil {
		return NewValidationError("amount and amount_msat are mutually exclusive")
	}
	return nil
}

// ResolveAmountMsat returns the requested amount in msat regardless of
// which of the two amount fields the caller supplied.
func (params *CreateInvoiceParams) ResolveAmountMsat() uint64 {
	if params.AmountMsat != nil {
		return *params.AmountMsat
	}
	if params.Amount != nil {
		return *params.Amount * 1000
	}
	return 0
}

// ResolveAmountMsat returns the amount override in msat, or nil when the
// caller did not override the invoice amount.
func (params *PayInvoiceParams) ResolveAmountMsat() *uint64 {
	if params.AmountMsat != nil {
		return params.AmountMsat
	}
	if params.Amount != nil {
		msat := *params.Amount * 1000
		return &msat
	}
	return nil
}

var paymentHashRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ValidatePaymentHash checks the canonical 32-byte hex form of a payment hash.
func ValidatePaymentHash(paymentHash string) error {
	if !paymentHashRegex.MatchString(paymentHash) {
		return NewValidationError("payment hash must be a 32 byte hex string")
	}
	return nil
}

// Base64ToHex normalizes a backend-native base64 identifier to lowercase hex.
// Returns an empty string for input that is not valid base64.
func Base64ToHex(value string) string {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(decoded)
}

// NormalizeHex lowercases a hex identifier so hashes and preimages compare
// consistently across backends.
func NormalizeHex(value string) string {
	return strings.ToLower(value)
}
