// Package eclair adapts an Eclair node's REST API to the canonical invoice
// model. Eclair expects form-encoded bodies and basic auth with an empty
// user name.
package eclair

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/blc-org/una/lnclient"
	"github.com/blc-org/una/logger"
	"github.com/blc-org/una/transport"
)

type Config struct {
	URL           string
	User          string
	Password      string
	SocksProxyURL string
}

type EclairService struct {
	config Config
	client *transport.HttpClient
	logger zerolog.Logger
}

func NewEclairService(config Config) (*EclairService, error) {
	if config.URL == "" || config.Password == "" {
		return nil, errors.New("one or more required Eclair configuration are missing")
	}

	client, err := transport.NewHttpClient(transport.HttpOptions{
		BaseURL:       config.URL,
		SocksProxyURL: config.SocksProxyURL,
	})
	if err != nil {
		return nil, err
	}

	return &EclairService{
		config: config,
		client: client,
		logger: logger.Logger.With().Str("backend", "eclair-rest").Logger(),
	}, nil
}

func (svc *EclairService) CreateInvoice(ctx context.Context, params *lnclient.CreateInvoiceParams) (*lnclient.Invoice, error) {
	if err := lnclient.ValidateCreateInvoiceParams(params); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("amountMsat", strconv.FormatUint(params.ResolveAmountMsat(), 10))
	if params.Description != nil {
		form.Set("description", *params.Description)
	}
	if params.DescriptionHash != nil {
		form.Set("descriptionHash", *params.DescriptionHash)
	}
	if params.ExpireIn != nil {
		form.Set("expireIn", strconv.FormatInt(*params.ExpireIn, 10))
	}
	if params.FallbackAddress != nil {
		form.Set("fallbackAddress", *params.FallbackAddress)
	}
	if params.PaymentPreimage != nil {
		form.Set("paymentPreimage", *params.PaymentPreimage)
	}

	var created eclairInvoiceCreated
	err := svc.request(ctx, "/createinvoice", form, &created)
	if err != nil {
		svc.logger.Error().Err(err).Msg("Failed to create invoice")
		return nil, err
	}

	return svc.GetInvoice(ctx, created.PaymentHash)
}

func (svc *EclairService) GetInvoice(ctx context.Context, paymentHash string) (*lnclient.Invoice, error) {
	form := url.Values{}
	form.Set("paymentHash", paymentHash)

	var lookup eclairInvoiceLookup
	err := svc.request(ctx, "/getreceivedinfo", form, &lookup)
	if err != nil {
		var backendErr *lnclient.BackendError
		if errors.As(err, &backendErr) && backendErr.Message == "Not found" {
			return nil, lnclient.NewNotFoundError(paymentHash)
		}
		svc.logger.Error().Err(err).Str("payment_hash", paymentHash).Msg("Failed to lookup invoice")
		return nil, err
	}

	return toInvoice(&lookup)
}

func (svc *EclairService) GetPendingInvoices(ctx context.Context) ([]lnclient.Invoice, error) {
	var pending []eclairInvoiceCreated
	err := svc.request(ctx, "/listpendinginvoices", url.Values{}, &pending)
	if err != nil {
		svc.logger.Error().Err(err).Msg("Failed to list pending invoices")
		return nil, err
	}

	invoices := make([]lnclient.Invoice, 0, len(pending))
	for i := range pending {
		invoices = append(invoices, *toPendingInvoice(&pending[i]))
	}
	return invoices, nil
}

func (svc *EclairService) PayInvoice(ctx context.Context, params *lnclient.PayInvoiceParams) (*lnclient.PayInvoiceResponse, error) {
	if err := lnclient.ValidatePayInvoiceParams(params); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("invoice", params.Bolt11)
	if amountMsat := params.ResolveAmountMsat(); amountMsat != nil {
		form.Set("amountMsat", strconv.FormatUint(*amountMsat, 10))
	}

	var preimage string
	err := svc.request(ctx, "/payinvoice", form, &preimage)
	if err != nil {
		svc.logger.Error().Err(err).Str("bolt11", params.Bolt11).Msg("Pay failed")
		return nil, err
	}

	// Eclair does not report routing fees on this endpoint
	return &lnclient.PayInvoiceResponse{
		Preimage: lnclient.NormalizeHex(preimage),
	}, nil
}

func (svc *EclairService) PollInterval() time.Duration {
	return lnclient.DefaultPollInterval
}

func (svc *EclairService) Shutdown() error {
	return nil
}

func (svc *EclairService) request(ctx context.Context, path string, form url.Values, out interface{}) error {
	headers := map[string]string{
		"Content-Type":  "application/x-www-form-urlencoded",
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(svc.config.User+":"+svc.config.Password)),
	}
	return svc.client.Request(ctx, http.MethodPost, path, headers, []byte(form.Encode()), out)
}

func toInvoice(lookup *eclairInvoiceLookup) (*lnclient.Invoice, error) {
	var status lnclient.InvoiceStatus
	switch lookup.Status.Type {
	case "pending":
		status = lnclient.StatusPending
	case "received":
		status = lnclient.StatusSettled
	case "expired":
		status = lnclient.StatusCancelled
	default:
		return nil, lnclient.NewBackendError("unknown Eclair payment status %q", lookup.Status.Type)
	}
	settled := status == lnclient.StatusSettled

	var settleDate *int64
	if settled {
		// receivedAt is reported in milliseconds
		receivedAt := lookup.Status.ReceivedAt / 1000
		settleDate = &receivedAt
	}

	var preimage *string
	if settled && lookup.PaymentPreimage != "" {
		preimageHex := lnclient.NormalizeHex(lookup.PaymentPreimage)
		preimage = &preimageHex
	}

	amountMsat := lookup.PaymentRequest.Amount
	return &lnclient.Invoice{
		PaymentHash:  lnclient.NormalizeHex(lookup.PaymentRequest.PaymentHash),
		Bolt11:       lookup.PaymentRequest.Serialized,
		Amount:       amountMsat / 1000,
		AmountMsat:   amountMsat,
		Memo:         lookup.PaymentRequest.Description,
		CreationDate: lookup.PaymentRequest.Timestamp,
		Expiry:       lookup.PaymentRequest.Expiry,
		Settled:      settled,
		SettleDate:   settleDate,
		Preimage:     preimage,
		Status:       status,
	}, nil
}

// toPendingInvoice maps the lighter shape returned by /listpendinginvoices;
// entries there are pending by definition.
func toPendingInvoice(created *eclairInvoiceCreated) *lnclient.Invoice {
	return &lnclient.Invoice{
		PaymentHash:  lnclient.NormalizeHex(created.PaymentHash),
		Bolt11:       created.Serialized,
		Amount:       created.Amount / 1000,
		AmountMsat:   created.Amount,
		Memo:         created.Description,
		CreationDate: created.Timestamp,
		Expiry:       created.Expiry,
		Settled:      false,
		SettleDate:   nil,
		Preimage:     nil,
		Status:       lnclient.StatusPending,
	}
}

type eclairInvoiceCreated struct {
	Prefix      string `json:"prefix"`
	Timestamp   int64  `json:"timestamp"`
	NodeId      string `json:"nodeId"`
	Serialized  string `json:"serialized"`
	Description string `json:"description"`
	PaymentHash string `json:"paymentHash"`
	Expiry      int64  `json:"expiry"`
	Amount      uint64 `json:"amount"`
}

type eclairInvoiceLookup struct {
	PaymentRequest  eclairInvoiceCreated `json:"paymentRequest"`
	PaymentPreimage string               `json:"paymentPreimage"`
	PaymentType     string               `json:"paymentType"`
	CreatedAt       int64                `json:"createdAt"`
	Status          eclairPaymentStatus  `json:"status"`
}

type eclairPaymentStatus struct {
	Type       string `json:"type"`
	Amount     uint64 `json:"amount"`
	ReceivedAt int64  `json:"receivedAt"`
}
