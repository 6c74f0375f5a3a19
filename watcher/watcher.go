// Package watcher polls a backend adapter for invoice status transitions
// and emits exactly one event per observed transition.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blc-org/una/events"
	"github.com/blc-org/una/lnclient"
	"github.com/blc-org/una/logger"
)

// watchEntry tracks the last observed status of one invoice. An entry also
// records whether a refresh is in flight so a slow lookup is never
// re-issued by a later tick.
type watchEntry struct {
	paymentHash        string
	lastObservedStatus lnclient.InvoiceStatus
	refreshing         bool
}

// InvoiceWatcher owns a watch-set of non-terminal invoices and refreshes
// them on a fixed cadence. The watch-set is only ever touched between a
// tick's fan-out and fan-in, and ticks never overlap.
type InvoiceWatcher struct {
	client   lnclient.LNClient
	interval time.Duration
	queue    *events.EventQueue
	logger   zerolog.Logger

	watchSet map[string]*watchEntry

	startMtx sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

type Option func(*InvoiceWatcher)

// WithInterval overrides the backend's polling cadence.
func WithInterval(interval time.Duration) Option {
	return func(w *InvoiceWatcher) {
		w.interval = interval
	}
}

func NewInvoiceWatcher(client lnclient.LNClient, opts ...Option) *InvoiceWatcher {
	w := &InvoiceWatcher{
		client:   client,
		interval: client.PollInterval(),
		queue:    events.NewEventQueue(100),
		watchSet: map[string]*watchEntry{},
		logger:   logger.Logger.With().Str("component", "invoice-watcher").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events returns the per-watcher queue that receives one
// invoice-updated event per observed status transition.
func (w *InvoiceWatcher) Events() *events.EventQueue {
	return w.queue
}

// Start launches the polling loop. Calling Start on a running watcher is a
// no-op.
func (w *InvoiceWatcher) Start(ctx context.Context) {
	w.startMtx.Lock()
	defer w.startMtx.Unlock()

	if w.started {
		return
	}
	w.started = true

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(watchCtx)
}

// Stop cancels the polling loop after the current tick drains. In-flight
// backend calls complete and their results are discarded.
func (w *InvoiceWatcher) Stop() {
	w.startMtx.Lock()
	defer w.startMtx.Unlock()

	if !w.started {
		return
	}
	w.cancel()
	<-w.done
	w.started = false
}

func (w *InvoiceWatcher) run(ctx context.Context) {
	// done must close before started clears so a concurrent Stop waiting on
	// done is released first
	defer func() {
		w.startMtx.Lock()
		w.started = false
		w.startMtx.Unlock()
	}()
	defer close(w.done)

	// the timer is reset only after a tick fully drains, so ticks can
	// never overlap
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.tick(ctx)
			timer.Reset(w.interval)
		}
	}
}

// tick runs one full discovery + refresh round. Any error from an
// individual backend call is isolated to that call: the entry stays
// tracked and the rest of the tick proceeds.
func (w *InvoiceWatcher) tick(ctx context.Context) {
	pendingInvoices, err := w.client.GetPendingInvoices(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to fetch pending invoices")
	} else {
		for i := range pendingInvoices {
			invoice := &pendingInvoices[i]
			if invoice.Status.IsTerminal() {
				continue
			}
			if _, tracked := w.watchSet[invoice.PaymentHash]; !tracked {
				w.logger.Debug().
					Str("payment_hash", invoice.PaymentHash).
					Str("status", string(invoice.Status)).
					Msg("Tracking invoice")
				w.watchSet[invoice.PaymentHash] = &watchEntry{
					paymentHash:        invoice.PaymentHash,
					lastObservedStatus: invoice.Status,
				}
			}
		}
	}

	type refreshResult struct {
		paymentHash string
		invoice     *lnclient.Invoice
		err         error
	}

	toRefresh := make([]string, 0, len(w.watchSet))
	for paymentHash, entry := range w.watchSet {
		if entry.refreshing {
			// a previous tick's lookup is still in flight
			continue
		}
		entry.refreshing = true
		toRefresh = append(toRefresh, paymentHash)
	}

	results := make(chan refreshResult, len(toRefresh))
	for _, paymentHash := range toRefresh {
		go func(paymentHash string) {
			invoice, err := w.client.GetInvoice(ctx, paymentHash)
			results <- refreshResult{paymentHash: paymentHash, invoice: invoice, err: err}
		}(paymentHash)
	}

	for range toRefresh {
		result := <-results

		entry, tracked := w.watchSet[result.paymentHash]
		if !tracked {
			continue
		}
		entry.refreshing = false

		if result.err != nil {
			w.logger.Error().Err(result.err).
				Str("payment_hash", result.paymentHash).
				Msg("Failed to refresh invoice, will retry next tick")
			continue
		}

		invoice := result.invoice
		if invoice.Status == entry.lastObservedStatus {
			continue
		}

		w.logger.Info().
			Str("payment_hash", invoice.PaymentHash).
			Str("from", string(entry.lastObservedStatus)).
			Str("to", string(invoice.Status)).
			Msg("Invoice status changed")

		w.queue.Enqueue(&events.InvoiceUpdatedEvent{Invoice: *invoice})
		entry.lastObservedStatus = invoice.Status

		if invoice.Status.IsTerminal() {
			// exact-match removal by payment hash
			delete(w.watchSet, invoice.PaymentHash)
		}
	}
}
