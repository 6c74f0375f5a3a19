// Package cln adapts a Core Lightning node to the canonical invoice model.
// The same mapping is shared by two transports: the node's JSON-RPC socket
// (unix or TCP) and the c-lightning-REST proxy.
package cln

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blc-org/una/lnclient"
	"github.com/blc-org/una/logger"
	"github.com/blc-org/una/utils"
)

// rpcCaller is the transport injected into the service. Both the socket
// client and the REST client satisfy it.
type rpcCaller interface {
	Call(ctx context.Context, method string, params interface{}, out interface{}) error
}

type ClnService struct {
	caller rpcCaller
	logger zerolog.Logger
}

func newClnService(caller rpcCaller, transportName string) *ClnService {
	return &ClnService{
		caller: caller,
		logger: logger.Logger.With().Str("backend", transportName).Logger(),
	}
}

func (svc *ClnService) CreateInvoice(ctx context.Context, params *lnclient.CreateInvoiceParams) (*lnclient.Invoice, error) {
	if err := lnclient.ValidateCreateInvoiceParams(params); err != nil {
		return nil, err
	}

	label := uuid.NewString()
	if params.Label != nil {
		label = *params.Label
	}

	request := clnInvoiceRequest{
		AmountMsat: params.ResolveAmountMsat(),
		Label:      label,
	}
	if params.Description != nil {
		request.Description = *params.Description
	}
	if params.DescriptionHash != nil {
		// CLN hashes the description itself; the raw hash cannot be
		// provided, so reject instead of creating a mismatched invoice
		return nil, lnclient.NewValidationError("description_hash is not supported by this backend")
	}
	if params.ExpireIn != nil {
		request.Expiry = params.ExpireIn
	}
	if params.PaymentPreimage != nil {
		request.Preimage = *params.PaymentPreimage
	}
	if params.FallbackAddress != nil {
		request.Fallbacks = []string{*params.FallbackAddress}
	}

	var created clnInvoiceCreated
	if err := svc.caller.Call(ctx, "invoice", &request, &created); err != nil {
		svc.logger.Error().Err(err).Msg("Failed to create invoice")
		return nil, err
	}

	return svc.GetInvoice(ctx, created.PaymentHash)
}

func (svc *ClnService) GetInvoice(ctx context.Context, paymentHash string) (*lnclient.Invoice, error) {
	var response clnListInvoicesResponse
	err := svc.caller.Call(ctx, "listinvoices", &clnListInvoicesRequest{PaymentHash: paymentHash}, &response)
	if err != nil {
		svc.logger.Error().Err(err).Str("payment_hash", paymentHash).Msg("Failed to lookup invoice")
		return nil, err
	}
	if len(response.Invoices) == 0 {
		return nil, lnclient.NewNotFoundError(paymentHash)
	}

	return svc.toInvoice(ctx, &response.Invoices[0])
}

func (svc *ClnService) GetPendingInvoices(ctx context.Context) ([]lnclient.Invoice, error) {
	var response clnListInvoicesResponse
	if err := svc.caller.Call(ctx, "listinvoices", &clnListInvoicesRequest{}, &response); err != nil {
		svc.logger.Error().Err(err).Msg("Failed to list invoices")
		return nil, err
	}

	// the list endpoint returns every invoice regardless of state
	pending := utils.Filter(response.Invoices, func(invoice clnListedInvoice) bool {
		return invoice.Status == "unpaid"
	})

	invoices := make([]lnclient.Invoice, 0, len(pending))
	for i := range pending {
		invoice, err := svc.toInvoice(ctx, &pending[i])
		if err != nil {
			svc.logger.Error().Err(err).Str("payment_hash", pending[i].PaymentHash).Msg("Skipping unmappable invoice")
			continue
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, nil
}

func (svc *ClnService) PayInvoice(ctx context.Context, params *lnclient.PayInvoiceParams) (*lnclient.PayInvoiceResponse, error) {
	if err := lnclient.ValidatePayInvoiceParams(params); err != nil {
		return nil, err
	}

	request := clnPayRequest{Bolt11: params.Bolt11}
	if amountMsat := params.ResolveAmountMsat(); amountMsat != nil {
		request.AmountMsat = amountMsat
	}

	var sent clnPaymentSent
	if err := svc.caller.Call(ctx, "pay", &request, &sent); err != nil {
		svc.logger.Error().Err(err).Str("bolt11", params.Bolt11).Msg("Pay failed")
		return nil, err
	}
	if sent.Status != "complete" {
		return nil, lnclient.NewBackendError("payment is %s", sent.Status)
	}

	var feesMsat uint64
	amountMsat, err := utils.ParseMsat(sent.AmountMsat)
	if err == nil {
		if sentMsat, err := utils.ParseMsat(sent.AmountSentMsat); err == nil && sentMsat >= amountMsat {
			feesMsat = sentMsat - amountMsat
		}
	}

	return &lnclient.PayInvoiceResponse{
		Preimage:   lnclient.NormalizeHex(sent.PaymentPreimage),
		FeesMsat:   feesMsat,
		FeesAmount: feesMsat / 1000,
	}, nil
}

func (svc *ClnService) PollInterval() time.Duration {
	return lnclient.DefaultPollInterval
}

func (svc *ClnService) Shutdown() error {
	return nil
}

func (svc *ClnService) decodeInvoice(ctx context.Context, bolt11 string) (*clnInvoiceDecoded, error) {
	var decoded clnInvoiceDecoded
	if err := svc.caller.Call(ctx, "decodepay", &clnDecodePayRequest{Bolt11: bolt11}, &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func (svc *ClnService) toInvoice(ctx context.Context, invoice *clnListedInvoice) (*lnclient.Invoice, error) {
	if invoice.Bolt11 == "" {
		return nil, lnclient.NewBackendError("invoice %s is not a bolt11", invoice.PaymentHash)
	}

	// the list entry has no creation date; decode the payment request for it
	decoded, err := svc.decodeInvoice(ctx, invoice.Bolt11)
	if err != nil {
		return nil, err
	}

	var status lnclient.InvoiceStatus
	switch invoice.Status {
	case "unpaid":
		status = lnclient.StatusPending
	case "paid":
		status = lnclient.StatusSettled
	case "expired":
		status = lnclient.StatusCancelled
	default:
		return nil, lnclient.NewBackendError("unknown CLN invoice status %q", invoice.Status)
	}
	settled := status == lnclient.StatusSettled

	amountMsat, err := resolveMsatAmount(invoice.AmountMsat, invoice.Msatoshi)
	if err != nil {
		return nil, err
	}

	var settleDate *int64
	if settled {
		if invoice.PaidAt != nil {
			paidAt := *invoice.PaidAt
			settleDate = &paidAt
		} else {
			// paid invoices sometimes come back without paid_at; fall back
			// to the observation time
			now := time.Now().Unix()
			settleDate = &now
		}
	}

	var preimage *string
	if settled && invoice.PaymentPreimage != "" {
		preimageHex := lnclient.NormalizeHex(invoice.PaymentPreimage)
		preimage = &preimageHex
	}

	return &lnclient.Invoice{
		PaymentHash:  lnclient.NormalizeHex(invoice.PaymentHash),
		Bolt11:       invoice.Bolt11,
		Amount:       amountMsat / 1000,
		AmountMsat:   amountMsat,
		Memo:         invoice.Description,
		CreationDate: decoded.CreatedAt,
		Expiry:       decoded.Expiry,
		Settled:      settled,
		SettleDate:   settleDate,
		Preimage:     preimage,
		Status:       status,
	}, nil
}

// resolveMsatAmount prefers the modern "123msat" string field and falls back
// to the legacy integer field.
func resolveMsatAmount(amountMsat string, msatoshi uint64) (uint64, error) {
	if amountMsat != "" {
		parsed, err := utils.ParseMsat(amountMsat)
		if err != nil {
			return 0, lnclient.NewBackendError("invalid CLN amount_msat: %s", err.Error())
		}
		return parsed, nil
	}
	// zero-amount ("any") invoices legitimately carry no amount
	return msatoshi, nil
}

type clnInvoiceRequest struct {
	AmountMsat  uint64   `json:"msatoshi"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Expiry      *int64   `json:"expiry,omitempty"`
	Preimage    string   `json:"preimage,omitempty"`
	Fallbacks   []string `json:"fallbacks,omitempty"`
}

type clnInvoiceCreated struct {
	PaymentHash string `json:"payment_hash"`
	Bolt11      string `json:"bolt11"`
	ExpiresAt   int64  `json:"expires_at"`
}

type clnListInvoicesRequest struct {
	PaymentHash string `json:"payment_hash,omitempty"`
}

type clnListInvoicesResponse struct {
	Invoices []clnListedInvoice `json:"invoices"`
}

type clnListedInvoice struct {
	Label           string `json:"label"`
	Description     string `json:"description"`
	PaymentHash     string `json:"payment_hash"`
	Status          string `json:"status"`
	ExpiresAt       int64  `json:"expires_at"`
	Msatoshi        uint64 `json:"msatoshi"`
	AmountMsat      string `json:"amount_msat,omitempty"`
	Bolt11          string `json:"bolt11,omitempty"`
	PaidAt          *int64 `json:"paid_at,omitempty"`
	PaymentPreimage string `json:"payment_preimage,omitempty"`
}

type clnDecodePayRequest struct {
	Bolt11 string `json:"bolt11"`
}

type clnInvoiceDecoded struct {
	Currency    string `json:"currency"`
	CreatedAt   int64  `json:"created_at"`
	Expiry      int64  `json:"expiry"`
	Payee       string `json:"payee"`
	PaymentHash string `json:"payment_hash"`
	Msatoshi    uint64 `json:"msatoshi"`
	AmountMsat  string `json:"amount_msat,omitempty"`
	Description string `json:"description,omitempty"`
}

type clnPayRequest struct {
	Bolt11     string  `json:"bolt11"`
	AmountMsat *uint64 `json:"msatoshi,omitempty"`
}

type clnPaymentSent struct {
	PaymentPreimage string `json:"payment_preimage"`
	PaymentHash     string `json:"payment_hash"`
	CreatedAt       int64  `json:"created_at"`
	Parts           int    `json:"parts"`
	AmountMsat      string `json:"amount_msat"`
	AmountSentMsat  string `json:"amount_sent_msat"`
	Status          string `json:"status"`
}
