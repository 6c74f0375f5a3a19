package eclair

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blc-org/una/lnclient"
	"github.com/blc-org/una/logger"
)

func init() {
	logger.Init("4")
}

const (
	eclairTestHash     = "12b95172cd7827aef28f2a6376c7111a92514cbabcc1e37e9a87fdaedfa4d056"
	eclairTestPreimage = "CD32AB21C0B9FDD456B1B02F1F1B42FCB3B0E2A6A6B2E2B66D6D8A1B6BB2E2B6"
	eclairTestPassword = "hunter2"
)

func paymentRequestBody() string {
	return fmt.Sprintf(`{
		"prefix": "lnbc",
		"timestamp": 1735689600,
		"nodeId": "02abc",
		"serialized": "lnbc20u1test",
		"description": "coffee",
		"paymentHash": %q,
		"expiry": 86400,
		"amount": 2000000
	}`, eclairTestHash)
}

func newTestService(t *testing.T, handler http.Handler) *EclairService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewEclairService(Config{URL: server.URL, Password: eclairTestPassword})
	require.NoError(t, err)
	return svc
}

func requireForm(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	expectedAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+eclairTestPassword))
	require.Equal(t, expectedAuth, r.Header.Get("Authorization"))
	require.NoError(t, r.ParseForm())
	return r.PostForm
}

func TestNewEclairService_RequiresPassword(t *testing.T) {
	_, err := NewEclairService(Config{URL: "http://localhost:8080"})
	assert.Error(t, err)
}

func TestCreateInvoice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/createinvoice", func(w http.ResponseWriter, r *http.Request) {
		form := requireForm(t, r)
		assert.Equal(t, "2000000", form.Get("amountMsat"))
		assert.Equal(t, "coffee", form.Get("description"))
		fmt.Fprint(w, paymentRequestBody())
	})
	mux.HandleFunc("/getreceivedinfo", func(w http.ResponseWriter, r *http.Request) {
		form := requireForm(t, r)
		assert.Equal(t, eclairTestHash, form.Get("paymentHash"))
		fmt.Fprintf(w, `{"paymentRequest": %s, "paymentPreimage": "", "status": {"type": "pending"}}`, paymentRequestBody())
	})

	svc := newTestService(t, mux)

	amount := uint64(2000)
	description := "coffee"
	invoice, err := svc.CreateInvoice(context.Background(), &lnclient.CreateInvoiceParams{
		Amount:      &amount,
		Description: &description,
	})
	require.NoError(t, err)

	assert.Equal(t, eclairTestHash, invoice.PaymentHash)
	assert.Equal(t, "lnbc20u1test", invoice.Bolt11)
	assert.Equal(t, uint64(2000), invoice.Amount)
	assert.Equal(t, uint64(2000000), invoice.AmountMsat)
	assert.Equal(t, "coffee", invoice.Memo)
	assert.Equal(t, lnclient.StatusPending, invoice.Status)
	assert.Nil(t, invoice.SettleDate)
}

func TestGetInvoice_ReceivedConvertsMillisecondsToSeconds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getreceivedinfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"paymentRequest": %s,
			"paymentPreimage": %q,
			"status": {"type": "received", "amount": 2000000, "receivedAt": 1735693200123}
		}`, paymentRequestBody(), eclairTestPreimage)
	})

	svc := newTestService(t, mux)

	invoice, err := svc.GetInvoice(context.Background(), eclairTestHash)
	require.NoError(t, err)

	assert.Equal(t, lnclient.StatusSettled, invoice.Status)
	assert.True(t, invoice.Settled)
	require.NotNil(t, invoice.SettleDate)
	assert.Equal(t, int64(1735693200), *invoice.SettleDate)
	require.NotNil(t, invoice.Preimage)
	assert.Equal(t, "cd32ab21c0b9fdd456b1b02f1f1b42fcb3b0e2a6a6b2e2b66d6d8a1b6bb2e2b6", *invoice.Preimage)
}

func TestGetInvoice_ExpiredMapsToCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getreceivedinfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"paymentRequest": %s, "status": {"type": "expired"}}`, paymentRequestBody())
	})

	svc := newTestService(t, mux)

	invoice, err := svc.GetInvoice(context.Background(), eclairTestHash)
	require.NoError(t, err)
	assert.Equal(t, lnclient.StatusCancelled, invoice.Status)
	assert.False(t, invoice.Settled)
	assert.Nil(t, invoice.SettleDate)
	assert.Nil(t, invoice.Preimage)
}

func TestGetInvoice_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getreceivedinfo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": "Not found"}`)
	})

	svc := newTestService(t, mux)

	_, err := svc.GetInvoice(context.Background(), eclairTestHash)
	var notFoundErr *lnclient.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, eclairTestHash, notFoundErr.PaymentHash)
}

func TestGetPendingInvoices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/listpendinginvoices", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[%s]`, paymentRequestBody())
	})

	svc := newTestService(t, mux)

	invoices, err := svc.GetPendingInvoices(context.Background())
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, eclairTestHash, invoices[0].PaymentHash)
	assert.Equal(t, lnclient.StatusPending, invoices[0].Status)
	assert.Equal(t, uint64(2000), invoices[0].Amount)
}

func TestPayInvoice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payinvoice", func(w http.ResponseWriter, r *http.Request) {
		form := requireForm(t, r)
		assert.Equal(t, "lnbc20u1test", form.Get("invoice"))
		fmt.Fprintf(w, "%q", eclairTestPreimage)
	})

	svc := newTestService(t, mux)

	response, err := svc.PayInvoice(context.Background(), &lnclient.PayInvoiceParams{Bolt11: "lnbc20u1test"})
	require.NoError(t, err)
	assert.Equal(t, "cd32ab21c0b9fdd456b1b02f1f1b42fcb3b0e2a6a6b2e2b66d6d8a1b6bb2e2b6", response.Preimage)
	assert.Zero(t, response.FeesMsat)
}
