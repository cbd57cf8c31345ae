// Package tx_monitor polls chain state for pending inbound transfers,
// confirms them against the configured confirmation threshold, and sweeps
// overdue entries into the expired state.
package tx_monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/custody-service/custody_service/internal/adapters/chain"
	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/domain/services/crediting"
	"github.com/custody-service/custody_service/internal/infrastructure/cache"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
)

const lastBlockKey = "deposit_monitor:last_block"

// PendingRepository is the persistence contract for pending transactions
type PendingRepository interface {
	ListNonTerminal(ctx context.Context) ([]entities.PendingTransaction, error)
	UpdateStatus(ctx context.Context, id int64, from, to entities.PendingStatus) error
	SetTxHash(ctx context.Context, id int64, txHash string) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// AddressResolver maps chain addresses to tenants
type AddressResolver interface {
	ListAll(ctx context.Context) ([]entities.DepositAddress, error)
	GetByAddress(ctx context.Context, address string) (*entities.DepositAddress, error)
}

// Creditor settles confirmed transfers
type Creditor interface {
	Credit(ctx context.Context, req crediting.CreditRequest) (*crediting.Result, error)
}

// Config holds monitor configuration
type Config struct {
	Interval         time.Duration
	MinConfirmations int64
	ScanTimeout      time.Duration
}

// DefaultConfig returns default monitor configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:         30 * time.Second,
		MinConfirmations: 1,
		ScanTimeout:      20 * time.Second,
	}
}

// Worker is the background transaction monitor
type Worker struct {
	pending   PendingRepository
	addresses AddressResolver
	creditor  Creditor
	provider  chain.QueryProvider
	redis     cache.RedisClient
	config    *Config
	logger    *logger.Logger

	sweepCounter  metric.Int64Counter
	creditCounter metric.Int64Counter

	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	lastSeen int64
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a new transaction monitor
func NewWorker(
	pending PendingRepository,
	addresses AddressResolver,
	creditor Creditor,
	provider chain.QueryProvider,
	redis cache.RedisClient,
	config *Config,
	log *logger.Logger,
) *Worker {
	if config == nil {
		config = DefaultConfig()
	}

	meter := otel.Meter("tx-monitor")
	sweepCounter, err := meter.Int64Counter(
		"tx_monitor_sweeps_total",
		metric.WithDescription("Completed monitor sweeps"),
	)
	if err != nil {
		log.Warn("Failed to create sweep counter", "error", err)
	}
	creditCounter, err := meter.Int64Counter(
		"tx_monitor_credits_total",
		metric.WithDescription("Transfers credited by the monitor"),
	)
	if err != nil {
		log.Warn("Failed to create credit counter", "error", err)
	}

	return &Worker{
		pending:   pending,
		addresses: addresses,
		creditor:  creditor,
		provider:  provider,
		redis:     redis,
		config:    config,
		logger:    log,

		sweepCounter:  sweepCounter,
		creditCounter: creditCounter,

		stopCh: make(chan struct{}),
	}
}

// Start begins the monitor loop. Blocks until the context is cancelled or
// Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("Starting transaction monitor",
		"interval", w.config.Interval.String(),
		"min_confirmations", w.config.MinConfirmations)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.wg.Add(1)
	defer w.wg.Done()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Transaction monitor stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Transaction monitor stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop signals the monitor to stop and waits for the in-flight sweep to
// finish. The current sweep always completes; work is never abandoned
// mid-item.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
}

// Status reports the monitor's last sweep for the admin endpoint
func (w *Worker) Status() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]interface{}{
		"running":           w.running,
		"last_run":          w.lastRun,
		"last_block":        w.lastSeen,
		"interval_seconds":  int(w.config.Interval.Seconds()),
		"min_confirmations": w.config.MinConfirmations,
	}
}

// sweep is one monitor pass: expire overdue entries, confirm pending ones,
// and discover unexpected transfers to managed addresses. Each item is
// isolated; one failure never aborts the pass.
func (w *Worker) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.config.ScanTimeout)
	defer cancel()

	w.mu.Lock()
	w.lastRun = time.Now()
	w.mu.Unlock()

	expired, err := w.pending.ExpireOverdue(ctx, time.Now())
	if err != nil {
		w.logger.Error("Failed to expire overdue transactions", "error", err)
	} else if expired > 0 {
		metrics.PendingExpired.Add(float64(expired))
		w.logger.Info("Expired overdue transactions", "count", expired)
	}

	w.confirmPending(ctx)
	w.discoverInbound(ctx)

	if w.sweepCounter != nil {
		w.sweepCounter.Add(ctx, 1)
	}
}

// confirmPending checks confirmation counts for entries that already have a
// transaction hash attached
func (w *Worker) confirmPending(ctx context.Context) {
	items, err := w.pending.ListNonTerminal(ctx)
	if err != nil {
		w.logger.Error("Failed to list pending transactions", "error", err)
		return
	}

	for _, item := range items {
		if item.TxHash == nil || *item.TxHash == "" {
			continue
		}
		if err := w.confirmOne(ctx, &item); err != nil {
			w.logger.Error("Failed to process pending transaction",
				"order_id", item.OrderID,
				"tx_hash", *item.TxHash,
				"error", err,
			)
		}
	}
}

func (w *Worker) confirmOne(ctx context.Context, item *entities.PendingTransaction) error {
	confirmations, err := w.provider.GetConfirmations(ctx, *item.TxHash)
	if err != nil {
		return fmt.Errorf("get confirmations: %w", err)
	}

	if item.Status == entities.PendingStatusPending && confirmations > 0 {
		if err := w.pending.UpdateStatus(ctx, item.ID, entities.PendingStatusPending, entities.PendingStatusConfirming); err != nil {
			return err
		}
		item.Status = entities.PendingStatusConfirming
	}

	if confirmations < w.config.MinConfirmations {
		return nil
	}

	result, err := w.creditor.Credit(ctx, crediting.CreditRequest{
		TenantID:     item.TenantID,
		Asset:        item.Asset,
		Amount:       item.Amount,
		TransferType: item.TransferType,
		TxHash:       *item.TxHash,
		ToAddress:    &item.Address,
		Source:       "monitor",
	})
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}

	if err := w.pending.UpdateStatus(ctx, item.ID, item.Status, entities.PendingStatusConfirmed); err != nil {
		return err
	}

	if result.Credited && w.creditCounter != nil {
		w.creditCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("path", "confirmation")),
		)
	}

	if result.Duplicate {
		w.logger.Info("Pending transaction settled by earlier credit",
			"order_id", item.OrderID, "tx_hash", *item.TxHash)
	}

	return nil
}

// discoverInbound scans managed addresses for transfers that arrived
// without a tracked pending entry, matching them to open orders when
// possible and crediting them as recharges otherwise
func (w *Worker) discoverInbound(ctx context.Context) {
	sinceBlock := w.loadCheckpoint(ctx)

	latest, err := w.provider.GetLatestBlock(ctx)
	if err != nil {
		w.logger.Error("Failed to get latest block", "error", err)
		return
	}

	addrs, err := w.addresses.ListAll(ctx)
	if err != nil {
		w.logger.Error("Failed to list deposit addresses", "error", err)
		return
	}

	open := w.openOrdersByAddress(ctx)

	// The checkpoint only moves forward after a fully clean pass. A failed
	// scan or credit leaves it in place so the next sweep covers the same
	// range again; duplicate events are absorbed by the tx_hash constraint.
	clean := true
	for _, addr := range addrs {
		events, err := w.provider.GetTransactionsForAddress(ctx, addr.Address, sinceBlock)
		if err != nil {
			w.logger.Error("Failed to scan address",
				"address", addr.Address, "error", err)
			clean = false
			continue
		}

		for _, event := range events {
			if err := w.handleEvent(ctx, &addr, event, open); err != nil {
				w.logger.Error("Failed to handle inbound transfer",
					"tx_hash", event.TxHash, "error", err)
				clean = false
			}
		}
	}

	if !clean {
		w.logger.Warn("Discovery pass incomplete, keeping block checkpoint",
			"since_block", sinceBlock, "latest_block", latest)
		return
	}

	w.saveCheckpoint(ctx, latest)
	w.mu.Lock()
	w.lastSeen = latest
	w.mu.Unlock()
}

// openOrdersByAddress indexes non-terminal orders without a hash so a
// discovered transfer can settle the order it was meant for. An address
// can carry several open orders at once, so each keeps its own entry.
func (w *Worker) openOrdersByAddress(ctx context.Context) map[string][]*entities.PendingTransaction {
	open := make(map[string][]*entities.PendingTransaction)
	items, err := w.pending.ListNonTerminal(ctx)
	if err != nil {
		w.logger.Error("Failed to index open orders", "error", err)
		return open
	}
	for i := range items {
		item := &items[i]
		if item.TxHash == nil || *item.TxHash == "" {
			open[item.Address] = append(open[item.Address], item)
		}
	}
	return open
}

func (w *Worker) handleEvent(ctx context.Context, addr *entities.DepositAddress, event chain.TxEvent, open map[string][]*entities.PendingTransaction) error {
	for i, order := range open[addr.Address] {
		if !order.Amount.Equal(event.Amount) {
			continue
		}
		// Attach the hash and drop the order from the index so a second
		// event cannot claim it. The confirmation pass settles it once
		// the threshold is reached.
		open[addr.Address] = append(open[addr.Address][:i], open[addr.Address][i+1:]...)
		return w.pending.SetTxHash(ctx, order.ID, event.TxHash)
	}

	// Untracked transfer: credit directly as a recharge
	blockHeight := event.BlockHeight
	result, err := w.creditor.Credit(ctx, crediting.CreditRequest{
		TenantID:     addr.TenantID,
		Asset:        addr.Asset,
		Amount:       event.Amount,
		TransferType: entities.TransferTypeRecharge,
		TxHash:       event.TxHash,
		FromAddress:  &event.FromAddress,
		ToAddress:    &event.ToAddress,
		BlockHeight:  &blockHeight,
		Source:       "monitor",
	})
	if err != nil {
		return err
	}
	if result.Credited {
		if w.creditCounter != nil {
			w.creditCounter.Add(ctx, 1,
				metric.WithAttributes(attribute.String("path", "discovery")),
			)
		}
		w.logger.Info("Credited untracked inbound transfer",
			"tx_hash", event.TxHash,
			"tenant_id", addr.TenantID,
			"amount", event.Amount.String(),
		)
	}
	return nil
}

func (w *Worker) loadCheckpoint(ctx context.Context) int64 {
	if w.redis == nil {
		return 0
	}
	var block int64
	if err := w.redis.Get(ctx, lastBlockKey, &block); err != nil {
		return 0
	}
	return block
}

func (w *Worker) saveCheckpoint(ctx context.Context, block int64) {
	if w.redis == nil || block == 0 {
		return
	}
	if err := w.redis.Set(ctx, lastBlockKey, block, 0); err != nil {
		w.logger.Warn("Failed to save block checkpoint", "error", err)
	}
}
