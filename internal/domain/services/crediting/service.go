// Package crediting settles confirmed inbound transfers into tenant
// balances. Crediting is at-most-once per transaction hash: the ledger's
// unique constraint is the single source of truth, and every balance
// increment happens in the same database transaction as the ledger insert.
package crediting

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/infrastructure/cache"
	"github.com/custody-service/custody_service/internal/infrastructure/database"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
)

const (
	processedTxKeyPrefix = "processed_tx:"
	processedTxTTL       = 24 * time.Hour
)

// TxRunner executes a function inside a database transaction
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// LedgerWriter appends ledger entries with the unique tx hash guard
type LedgerWriter interface {
	InsertInTx(ctx context.Context, tx *sqlx.Tx, entry *entities.LedgerEntry) (bool, error)
}

// TenantStore mutates tenant balances and activation status
type TenantStore interface {
	GetByID(ctx context.Context, id int64) (*entities.Tenant, error)
	IncrementBalanceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, amount decimal.Decimal) error
	ActivateInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64) (bool, error)
}

// ReferralRewarder pays the one-time referral reward after an activation
type ReferralRewarder interface {
	RewardInTx(ctx context.Context, tx *sqlx.Tx, invitee *entities.Tenant, activationAmount decimal.Decimal) error
}

// CreditRequest describes a confirmed transfer to settle
type CreditRequest struct {
	TenantID     int64
	Asset        string
	Amount       decimal.Decimal
	TransferType entities.TransferType
	TxHash       string
	FromAddress  *string
	ToAddress    *string
	BlockHeight  *int64
	Source       string
}

// Result reports the outcome of a credit attempt
type Result struct {
	Credited  bool
	Duplicate bool
	Activated bool
}

// Service settles confirmed transfers
type Service struct {
	txRunner TxRunner
	tenants  TenantStore
	ledger   LedgerWriter
	referral ReferralRewarder
	redis    cache.RedisClient
	logger   *logger.Logger
}

// NewService creates a new crediting service
func NewService(
	txRunner TxRunner,
	tenants TenantStore,
	ledger LedgerWriter,
	referral ReferralRewarder,
	redis cache.RedisClient,
	log *logger.Logger,
) *Service {
	return &Service{
		txRunner: txRunner,
		tenants:  tenants,
		ledger:   ledger,
		referral: referral,
		redis:    redis,
		logger:   log,
	}
}

// SQLTxRunner runs transactions against a live database connection
type SQLTxRunner struct {
	db *sqlx.DB
}

// NewSQLTxRunner creates a transaction runner over a database handle
func NewSQLTxRunner(db *sqlx.DB) *SQLTxRunner {
	return &SQLTxRunner{db: db}
}

// WithTransaction executes fn inside a database transaction
func (r *SQLTxRunner) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return database.WithTransaction(ctx, r.db, fn)
}

// Credit settles a confirmed transfer. Safe to call any number of times
// with the same transaction hash; only the first call moves money. The
// ledger insert and the balance increment commit together or not at all.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (*Result, error) {
	if req.TxHash == "" {
		return nil, fmt.Errorf("tx hash is required")
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive: %s", req.Amount)
	}
	if err := req.TransferType.Validate(); err != nil {
		return nil, err
	}

	// Fast path: skip the database round trip for hashes settled recently.
	// Purely an optimization; the ledger constraint remains authoritative.
	if s.alreadyProcessed(ctx, req.TxHash) {
		metrics.DuplicateCredits.Inc()
		return &Result{Duplicate: true}, nil
	}

	result := &Result{}
	err := s.txRunner.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		inserted, err := s.ledger.InsertInTx(ctx, tx, &entities.LedgerEntry{
			TenantID:     req.TenantID,
			Asset:        req.Asset,
			Amount:       req.Amount,
			TransferType: req.TransferType,
			TxHash:       req.TxHash,
			FromAddress:  req.FromAddress,
			ToAddress:    req.ToAddress,
			BlockHeight:  req.BlockHeight,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.Duplicate = true
			return nil
		}

		if err := s.tenants.IncrementBalanceInTx(ctx, tx, req.TenantID, req.Amount); err != nil {
			return err
		}
		result.Credited = true

		if req.TransferType == entities.TransferTypeActivation {
			activated, err := s.tenants.ActivateInTx(ctx, tx, req.TenantID)
			if err != nil {
				return err
			}
			result.Activated = activated

			if activated && s.referral != nil {
				invitee, err := s.tenants.GetByID(ctx, req.TenantID)
				if err != nil {
					return err
				}
				if err := s.referral.RewardInTx(ctx, tx, invitee, req.Amount); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit transaction %s: %w", req.TxHash, err)
	}

	s.markProcessed(ctx, req.TxHash)

	if result.Duplicate {
		metrics.DuplicateCredits.Inc()
		s.logger.Info("Duplicate credit absorbed", "tx_hash", req.TxHash, "source", req.Source)
		return result, nil
	}

	metrics.DepositsCredited.WithLabelValues(req.Source, string(req.TransferType)).Inc()
	s.logger.Info("Transaction credited",
		"tx_hash", req.TxHash,
		"tenant_id", req.TenantID,
		"amount", req.Amount.String(),
		"transfer_type", string(req.TransferType),
		"activated", result.Activated,
		"source", req.Source,
	)

	return result, nil
}

// alreadyProcessed consults the redis marker. Any cache failure is treated
// as a miss; correctness never depends on the cache.
func (s *Service) alreadyProcessed(ctx context.Context, txHash string) bool {
	if s.redis == nil {
		return false
	}
	exists, err := s.redis.Exists(ctx, processedTxKeyPrefix+txHash)
	if err != nil {
		s.logger.Warn("Redis lookup failed, falling through to database", "error", err)
		return false
	}
	return exists
}

func (s *Service) markProcessed(ctx context.Context, txHash string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.SetString(ctx, processedTxKeyPrefix+txHash, "1", processedTxTTL); err != nil {
		s.logger.Warn("Failed to set processed tx marker", "tx_hash", txHash, "error", err)
	}
}
