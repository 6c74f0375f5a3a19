// Package lndrest adapts an LND node fronted by its REST proxy to the
// canonical invoice model.
package lndrest

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blc-org/una/lnclient"
	"github.com/blc-org/una/logger"
	"github.com/blc-org/una/transport"
	"github.com/blc-org/una/utils"
)

type Config struct {
	URL           string
	MacaroonHex   string
	CertHex       string
	SocksProxyURL string
}

type LndRestService struct {
	config Config
	client *transport.HttpClient
	logger zerolog.Logger
}

func NewLndRestService(config Config) (*LndRestService, error) {
	if config.URL == "" || config.MacaroonHex == "" {
		return nil, errors.New("one or more required LND configuration are missing")
	}

	client, err := transport.NewHttpClient(transport.HttpOptions{
		BaseURL:       config.URL,
		CertHex:       config.CertHex,
		SocksProxyURL: config.SocksProxyURL,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to create LND REST client")
		return nil, err
	}

	return &LndRestService{
		config: config,
		client: client,
		logger: logger.Logger.With().Str("backend", "lnd-rest").Logger(),
	}, nil
}

func (svc *LndRestService) CreateInvoice(ctx context.Context, params *lnclient.CreateInvoiceParams) (*lnclient.Invoice, error) {
	if err := lnclient.ValidateCreateInvoiceParams(params); err != nil {
		return nil, err
	}

	body := lndCreateInvoiceRequest{
		ValueMsat: strconv.FormatUint(params.ResolveAmountMsat(), 10),
	}
	if params.Description != nil {
		body.Memo = *params.Description
	}
	if params.DescriptionHash != nil {
		descriptionHash, err := hexToBase64(*params.DescriptionHash)
		if err != nil {
			return nil, lnclient.NewValidationError("description hash must be a hex string")
		}
		body.DescriptionHash = descriptionHash
	}
	if params.ExpireIn != nil {
		body.Expiry = strconv.FormatInt(*params.ExpireIn, 10)
	}
	if params.FallbackAddress != nil {
		body.FallbackAddr = *params.FallbackAddress
	}
	if params.PaymentPreimage != nil {
		preimage, err := hexToBase64(*params.PaymentPreimage)
		if err != nil {
			return nil, lnclient.NewValidationError("payment preimage must be a hex string")
		}
		body.RPreimage = preimage
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var created lndCreateInvoiceResponse
	err = svc.client.Request(ctx, http.MethodPost, "/v1/invoices", svc.headers(), requestBody, &created)
	if err != nil {
		svc.logger.Error().Err(err).Msg("Failed to create invoice")
		return nil, err
	}

	// the creation response is partial, look the invoice up to return a
	// fully populated snapshot
	return svc.GetInvoice(ctx, lnclient.Base64ToHex(created.RHash))
}

func (svc *LndRestService) GetInvoice(ctx context.Context, paymentHash string) (*lnclient.Invoice, error) {
	var raw lndInvoice
	err := svc.client.Request(ctx, http.MethodGet, "/v1/invoice/"+paymentHash, svc.headers(), nil, &raw)
	if err != nil {
		var backendErr *lnclient.BackendError
		if errors.As(err, &backendErr) && strings.Contains(backendErr.Message, "unable to locate invoice") {
			return nil, lnclient.NewNotFoundError(paymentHash)
		}
		svc.logger.Error().Err(err).Str("payment_hash", paymentHash).Msg("Failed to lookup invoice")
		return nil, err
	}

	return toInvoice(&raw)
}

func (svc *LndRestService) GetPendingInvoices(ctx context.Context) ([]lnclient.Invoice, error) {
	var response lndListInvoicesResponse
	err := svc.client.Request(ctx, http.MethodGet, "/v1/invoices?pending_only=true", svc.headers(), nil, &response)
	if err != nil {
		svc.logger.Error().Err(err).Msg("Failed to list pending invoices")
		return nil, err
	}

	invoices := make([]lnclient.Invoice, 0, len(response.Invoices))
	for _, raw := range response.Invoices {
		invoice, err := toInvoice(&raw)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, nil
}

func (svc *LndRestService) PayInvoice(ctx context.Context, params *lnclient.PayInvoiceParams) (*lnclient.PayInvoiceResponse, error) {
	if err := lnclient.ValidatePayInvoiceParams(params); err != nil {
		return nil, err
	}

	body := lndSendPaymentRequest{
		PaymentRequest: params.Bolt11,
	}
	if amountMsat := params.ResolveAmountMsat(); amountMsat != nil {
		body.AmtMsat = strconv.FormatUint(*amountMsat, 10)
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var sent lndPaymentSent
	err = svc.client.Request(ctx, http.MethodPost, "/v1/channels/transactions", svc.headers(), requestBody, &sent)
	if err != nil {
		svc.logger.Error().Err(err).Str("bolt11", params.Bolt11).Msg("SendPayment failed")
		return nil, err
	}
	if sent.PaymentError != "" {
		svc.logger.Error().
			Str("bolt11", params.Bolt11).
			Str("reason", sent.PaymentError).
			Msg("Payment not successful")
		return nil, lnclient.NewBackendError("%s", sent.PaymentError)
	}
	if sent.PaymentPreimage == "" {
		return nil, lnclient.NewBackendError("no payment preimage in response")
	}

	feesMsat, _ := sent.PaymentRoute.TotalFeesMsat.Int64()
	return &lnclient.PayInvoiceResponse{
		Preimage:   lnclient.Base64ToHex(sent.PaymentPreimage),
		FeesMsat:   uint64(feesMsat),
		FeesAmount: uint64(feesMsat) / 1000,
	}, nil
}

func (svc *LndRestService) PollInterval() time.Duration {
	return lnclient.DefaultPollInterval
}

func (svc *LndRestService) Shutdown() error {
	return nil
}

func (svc *LndRestService) headers() map[string]string {
	return map[string]string{
		"Grpc-Metadata-macaroon": svc.config.MacaroonHex,
		"Content-Type":           "application/json",
	}
}

func toInvoice(raw *lndInvoice) (*lnclient.Invoice, error) {
	var status lnclient.InvoiceStatus
	switch raw.State {
	case "OPEN":
		status = lnclient.StatusPending
	case "ACCEPTED":
		status = lnclient.StatusAccepted
	case "SETTLED":
		status = lnclient.StatusSettled
	case "CANCELED":
		status = lnclient.StatusCancelled
	default:
		return nil, lnclient.NewBackendError("unknown LND invoice state %q", raw.State)
	}

	amount, err := utils.ParseUint(raw.Value)
	if err != nil {
		return nil, lnclient.NewBackendError("invalid LND invoice value: %s", err.Error())
	}
	amountMsat, err := utils.ParseUint(raw.ValueMsat)
	if err != nil {
		return nil, lnclient.NewBackendError("invalid LND invoice value_msat: %s", err.Error())
	}
	creationDate, err := utils.ParseInt(raw.CreationDate)
	if err != nil {
		return nil, lnclient.NewBackendError("invalid LND invoice creation_date: %s", err.Error())
	}
	expiry, err := utils.ParseInt(raw.Expiry)
	if err != nil {
		return nil, lnclient.NewBackendError("invalid LND invoice expiry: %s", err.Error())
	}

	var settleDate *int64
	if raw.SettleDate != "" && raw.SettleDate != "0" {
		parsed, err := utils.ParseInt(raw.SettleDate)
		if err != nil {
			return nil, lnclient.NewBackendError("invalid LND invoice settle_date: %s", err.Error())
		}
		settleDate = &parsed
	}

	var preimage *string
	if status == lnclient.StatusSettled && raw.RPreimage != "" {
		preimageHex := lnclient.Base64ToHex(raw.RPreimage)
		if preimageHex != "" {
			preimage = &preimageHex
		}
	}
	if status != lnclient.StatusSettled {
		settleDate = nil
	}
	if status == lnclient.StatusSettled && settleDate == nil {
		// a settled invoice always carries a settle date; fall back to the
		// observation time when the node omits one
		now := time.Now().Unix()
		settleDate = &now
	}

	return &lnclient.Invoice{
		PaymentHash:  lnclient.Base64ToHex(raw.RHash),
		Bolt11:       raw.PaymentRequest,
		Amount:       amount,
		AmountMsat:   amountMsat,
		Memo:         raw.Memo,
		CreationDate: creationDate,
		Expiry:       expiry,
		Settled:      status == lnclient.StatusSettled,
		SettleDate:   settleDate,
		Preimage:     preimage,
		Status:       status,
	}, nil
}

func hexToBase64(value string) (string, error) {
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(decoded), nil
}

type lndCreateInvoiceRequest struct {
	ValueMsat       string `json:"value_msat"`
	Memo            string `json:"memo,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Expiry          string `json:"expiry,omitempty"`
	FallbackAddr    string `json:"fallback_addr,omitempty"`
	RPreimage       string `json:"r_preimage,omitempty"`
}

type lndCreateInvoiceResponse struct {
	RHash          string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
	AddIndex       string `json:"add_index"`
}

type lndInvoice struct {
	Memo           string `json:"memo"`
	RPreimage      string `json:"r_preimage"`
	RHash          string `json:"r_hash"`
	Value          string `json:"value"`
	ValueMsat      string `json:"value_msat"`
	Settled        bool   `json:"settled"`
	CreationDate   string `json:"creation_date"`
	SettleDate     string `json:"settle_date"`
	PaymentRequest string `json:"payment_request"`
	Expiry         string `json:"expiry"`
	FallbackAddr   string `json:"fallback_addr"`
	State          string `json:"state"`
}

type lndListInvoicesResponse struct {
	Invoices []lndInvoice `json:"invoices"`
}

type lndSendPaymentRequest struct {
	PaymentRequest string `json:"payment_request"`
	AmtMsat        string `json:"amt_msat,omitempty"`
}

type lndPaymentSent struct {
	PaymentError    string `json:"payment_error"`
	PaymentPreimage string `json:"payment_preimage"`
	PaymentHash     string `json:"payment_hash"`
	PaymentRoute    struct {
		TotalFees     json.Number `json:"total_fees"`
		TotalFeesMsat json.Number `json:"total_fees_msat"`
	} `json:"payment_route"`
}
