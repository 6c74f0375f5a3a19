// Package una is the facade over the backend adapters: it validates caller
// input, constructs the configured adapter from an explicit backend kind
// and wires the invoice watcher to it.
package una

import (
	"context"
	"fmt"

	"github.com/blc-org/una/events"
	"github.com/blc-org/una/lnclient"
	"github.com/blc-org/una/lnclient/cln"
	"github.com/blc-org/una/lnclient/eclair"
	"github.com/blc-org/una/lnclient/lndhub"
	"github.com/blc-org/una/lnclient/lndrest"
	"github.com/blc-org/una/watcher"
)

// BackendKind is the explicit discriminant used to select an adapter at
// construction time.
type BackendKind string

const (
	BackendLndRest   BackendKind = "lnd-rest"
	BackendClnSocket BackendKind = "cln-socket"
	BackendClnRest   BackendKind = "cln-rest"
	BackendEclair    BackendKind = "eclair-rest"
	BackendLndHub    BackendKind = "lndhub"
)

// ConnectionInfo carries the union of every backend's recognized options;
// each kind reads only its own fields.
type ConnectionInfo struct {
	URL         string
	MacaroonHex string
	CertHex     string

	// cln-socket
	SocketPath string
	Host       string
	Port       uint16

	// eclair-rest
	User     string
	Password string

	// lndhub
	URI   string
	Login string

	SocksProxyURL string
}

type UnaService struct {
	client  lnclient.LNClient
	watcher *watcher.InvoiceWatcher
}

// NewUnaService constructs the adapter named by kind. Unknown kinds and
// incomplete connection information fail here, before any call is made.
func NewUnaService(kind BackendKind, info ConnectionInfo) (*UnaService, error) {
	var client lnclient.LNClient
	var err error

	switch kind {
	case BackendLndRest:
		client, err = lndrest.NewLndRestService(lndrest.Config{
			URL:           info.URL,
			MacaroonHex:   info.MacaroonHex,
			CertHex:       info.CertHex,
			SocksProxyURL: info.SocksProxyURL,
		})
	case BackendClnSocket:
		client, err = cln.NewSocketService(cln.SocketConfig{
			Path: info.SocketPath,
			Host: info.Host,
			Port: info.Port,
		})
	case BackendClnRest:
		client, err = cln.NewRestService(cln.RestConfig{
			URL:           info.URL,
			MacaroonHex:   info.MacaroonHex,
			CertHex:       info.CertHex,
			SocksProxyURL: info.SocksProxyURL,
		})
	case BackendEclair:
		client, err = eclair.NewEclairService(eclair.Config{
			URL:           info.URL,
			User:          info.User,
			Password:      info.Password,
			SocksProxyURL: info.SocksProxyURL,
		})
	case BackendLndHub:
		client, err = lndhub.NewLndHubService(lndhub.Config{
			URI:           info.URI,
			URL:           info.URL,
			Login:         info.Login,
			Password:      info.Password,
			SocksProxyURL: info.SocksProxyURL,
		})
	default:
		return nil, fmt.Errorf("backend %q is not supported", kind)
	}
	if err != nil {
		return nil, err
	}

	return &UnaService{
		client:  client,
		watcher: watcher.NewInvoiceWatcher(client),
	}, nil
}

// NewUnaServiceWithClient wires the facade to an already constructed
// adapter. Used by tests and by callers that manage their own transport.
func NewUnaServiceWithClient(client lnclient.LNClient) *UnaService {
	return &UnaService{
		client:  client,
		watcher: watcher.NewInvoiceWatcher(client),
	}
}

func (svc *UnaService) CreateInvoice(ctx context.Context, params *lnclient.CreateInvoiceParams) (*lnclient.Invoice, error) {
	if err := lnclient.ValidateCreateInvoiceParams(params); err != nil {
		return nil, err
	}
	return svc.client.CreateInvoice(ctx, params)
}

func (svc *UnaService) GetInvoice(ctx context.Context, paymentHash string) (*lnclient.Invoice, error) {
	if err := lnclient.ValidatePaymentHash(paymentHash); err != nil {
		return nil, err
	}
	return svc.client.GetInvoice(ctx, lnclient.NormalizeHex(paymentHash))
}

// PayInvoice fails with a ValidationError when the configured backend does
// not expose send-payment capability.
func (svc *UnaService) PayInvoice(ctx context.Context, params *lnclient.PayInvoiceParams) (*lnclient.PayInvoiceResponse, error) {
	if err := lnclient.ValidatePayInvoiceParams(params); err != nil {
		return nil, err
	}
	payer, ok := svc.client.(lnclient.InvoicePayer)
	if !ok {
		return nil, lnclient.NewValidationError("the configured backend does not support paying invoices")
	}
	return payer.PayInvoice(ctx, params)
}

// WatchInvoices returns the event stream carrying one invoice-updated
// event per detected status transition.
func (svc *UnaService) WatchInvoices() *events.EventQueue {
	return svc.watcher.Events()
}

// StartWatchingInvoices starts the polling loop if it is not already
// running. Idempotent per instance.
func (svc *UnaService) StartWatchingInvoices(ctx context.Context) {
	svc.watcher.Start(ctx)
}

func (svc *UnaService) Shutdown() error {
	svc.watcher.Stop()
	return svc.client.Shutdown()
}
