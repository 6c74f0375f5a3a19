package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blc-org/una/events"
	"github.com/blc-org/una/lnclient"
	"github.com/blc-org/una/logger"
)

func init() {
	logger.Init("4")
}

// fakeBackend scripts per-invoice status sequences. Each GetInvoice call
// advances the invoice's script by one step, holding the last status once
// the script is exhausted.
type fakeBackend struct {
	mtx          sync.Mutex
	scripts      map[string][]lnclient.InvoiceStatus
	position     map[string]int
	failing      map[string]bool
	pending      []string
	pendingCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		scripts:  map[string][]lnclient.InvoiceStatus{},
		position: map[string]int{},
		failing:  map[string]bool{},
	}
}

func (f *fakeBackend) addInvoice(paymentHash string, script ...lnclient.InvoiceStatus) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.scripts[paymentHash] = script
	f.pending = append(f.pending, paymentHash)
}

func (f *fakeBackend) invoiceAt(paymentHash string, index int) lnclient.Invoice {
	script := f.scripts[paymentHash]
	if index >= len(script) {
		index = len(script) - 1
	}
	status := script[index]
	settled := status == lnclient.StatusSettled
	var settleDate *int64
	if settled {
		now := time.Now().Unix()
		settleDate = &now
	}
	return lnclient.Invoice{
		PaymentHash:  paymentHash,
		Bolt11:       "lnbc1" + paymentHash,
		Amount:       21,
		AmountMsat:   21000,
		CreationDate: time.Now().Unix(),
		Expiry:       3600,
		Settled:      settled,
		SettleDate:   settleDate,
		Status:       status,
	}
}

func (f *fakeBackend) CreateInvoice(ctx context.Context, params *lnclient.CreateInvoiceParams) (*lnclient.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBackend) GetInvoice(ctx context.Context, paymentHash string) (*lnclient.Invoice, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.failing[paymentHash] {
		return nil, lnclient.NewBackendError("transport error")
	}
	if _, ok := f.scripts[paymentHash]; !ok {
		return nil, lnclient.NewNotFoundError(paymentHash)
	}
	invoice := f.invoiceAt(paymentHash, f.position[paymentHash])
	f.position[paymentHash]++
	return &invoice, nil
}

func (f *fakeBackend) GetPendingInvoices(ctx context.Context) ([]lnclient.Invoice, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.pendingCalls++
	invoices := []lnclient.Invoice{}
	for _, paymentHash := range f.pending {
		invoices = append(invoices, f.invoiceAt(paymentHash, 0))
	}
	return invoices, nil
}

func (f *fakeBackend) PollInterval() time.Duration {
	return time.Second
}

func (f *fakeBackend) Shutdown() error {
	return nil
}

func drainInvoiceEvents(queue *events.EventQueue) []lnclient.Invoice {
	invoices := []lnclient.Invoice{}
	for _, event := range queue.GetAndClearPendingEvents() {
		updated, ok := event.(*events.InvoiceUpdatedEvent)
		if !ok {
			continue
		}
		invoices = append(invoices, updated.Invoice)
	}
	return invoices
}

func TestWatcher_EmitsSingleTransitionEvent(t *testing.T) {
	backend := newFakeBackend()
	// Pending at tick 1, Settled at tick 2
	backend.addInvoice("aa01", lnclient.StatusPending, lnclient.StatusSettled)

	w := NewInvoiceWatcher(backend)
	ctx := context.Background()

	w.tick(ctx)
	assert.Empty(t, drainInvoiceEvents(w.Events()), "no transition on first observation")
	assert.Contains(t, w.watchSet, "aa01")

	w.tick(ctx)
	updated := drainInvoiceEvents(w.Events())
	require.Len(t, updated, 1)
	assert.Equal(t, "aa01", updated[0].PaymentHash)
	assert.Equal(t, lnclient.StatusSettled, updated[0].Status)
	assert.True(t, updated[0].Settled)
	assert.NotNil(t, updated[0].SettleDate)
	assert.NotContains(t, w.watchSet, "aa01", "terminal invoice must leave the watch-set")
}

func TestWatcher_NoDuplicateEventsForStableInvoice(t *testing.T) {
	backend := newFakeBackend()
	backend.addInvoice("bb02",
		lnclient.StatusPending, lnclient.StatusPending, lnclient.StatusPending,
		lnclient.StatusPending, lnclient.StatusPending, lnclient.StatusPending,
		lnclient.StatusPending, lnclient.StatusPending, lnclient.StatusPending,
		lnclient.StatusPending)

	w := NewInvoiceWatcher(backend)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		w.tick(ctx)
	}

	assert.Empty(t, drainInvoiceEvents(w.Events()))
	assert.Contains(t, w.watchSet, "bb02", "stable invoice stays tracked")
}

func TestWatcher_NonTerminalTransitionKeepsTracking(t *testing.T) {
	backend := newFakeBackend()
	backend.addInvoice("cc03", lnclient.StatusPending, lnclient.StatusAccepted, lnclient.StatusSettled)

	w := NewInvoiceWatcher(backend)
	ctx := context.Background()

	w.tick(ctx)
	w.tick(ctx)

	updated := drainInvoiceEvents(w.Events())
	require.Len(t, updated, 1)
	assert.Equal(t, lnclient.StatusAccepted, updated[0].Status)
	assert.Contains(t, w.watchSet, "cc03", "accepted is not terminal")

	w.tick(ctx)
	updated = drainInvoiceEvents(w.Events())
	require.Len(t, updated, 1)
	assert.Equal(t, lnclient.StatusSettled, updated[0].Status)
	assert.NotContains(t, w.watchSet, "cc03")
}

func TestWatcher_FaultIsolation(t *testing.T) {
	backend := newFakeBackend()
	backend.addInvoice("dd04", lnclient.StatusPending, lnclient.StatusPending, lnclient.StatusSettled)
	backend.addInvoice("ee05", lnclient.StatusPending)
	backend.failing["ee05"] = true

	w := NewInvoiceWatcher(backend)
	ctx := context.Background()

	w.tick(ctx)
	w.tick(ctx)
	w.tick(ctx)

	updated := drainInvoiceEvents(w.Events())
	require.Len(t, updated, 1, "healthy invoice still transitions")
	assert.Equal(t, "dd04", updated[0].PaymentHash)
	assert.NotContains(t, w.watchSet, "dd04")
	assert.Contains(t, w.watchSet, "ee05", "failing invoice remains tracked")
}

func (f *fakeBackend) pendingCallCount() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.pendingCalls
}

func TestWatcher_StartResumesAfterContextCancellation(t *testing.T) {
	backend := newFakeBackend()
	w := NewInvoiceWatcher(backend, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	callsAfterCancel := backend.pendingCallCount()
	assert.Greater(t, callsAfterCancel, 0)

	w.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	w.Stop()

	assert.Greater(t, backend.pendingCallCount(), callsAfterCancel,
		"polling must resume when the watcher is restarted")
}

func TestWatcher_StartIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	w := NewInvoiceWatcher(backend, WithInterval(10*time.Millisecond))

	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	w.Stop()

	// a second stop must not block or panic
	w.Stop()
}
