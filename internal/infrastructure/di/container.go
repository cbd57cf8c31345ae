// Package di wires the application's dependencies together.
package di

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/custody-service/custody_service/internal/adapters/chain"
	"github.com/custody-service/custody_service/internal/adapters/keyderiv"
	"github.com/custody-service/custody_service/internal/domain/services/address"
	"github.com/custody-service/custody_service/internal/domain/services/crediting"
	"github.com/custody-service/custody_service/internal/domain/services/fees"
	"github.com/custody-service/custody_service/internal/domain/services/referral"
	"github.com/custody-service/custody_service/internal/domain/services/withdrawal"
	"github.com/custody-service/custody_service/internal/infrastructure/cache"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
	"github.com/custody-service/custody_service/internal/infrastructure/repositories"
	"github.com/custody-service/custody_service/internal/workers/retention"
	"github.com/custody-service/custody_service/internal/workers/tx_monitor"
	"github.com/custody-service/custody_service/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *sqlx.DB
	Redis  cache.RedisClient

	TenantRepo    *repositories.TenantRepository
	AddressRepo   *repositories.AddressRepository
	PendingRepo   *repositories.PendingRepository
	LedgerRepo    *repositories.LedgerRepository
	FeeProfitRepo *repositories.FeeProfitRepository

	ChainProvider chain.QueryProvider

	AddressService    *address.Service
	FeeCalculator     *fees.Calculator
	ReferralService   *referral.Service
	CreditingService  *crediting.Service
	WithdrawalService *withdrawal.Service

	Monitor         *tx_monitor.Worker
	RetentionWorker *retention.Worker
}

// NewContainer builds the dependency graph
func NewContainer(cfg *config.Config, log *logger.Logger, db *sqlx.DB, redis cache.RedisClient) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: log,
		DB:     db,
		Redis:  redis,
	}

	c.TenantRepo = repositories.NewTenantRepository(db)
	c.AddressRepo = repositories.NewAddressRepository(db)
	c.PendingRepo = repositories.NewPendingRepository(db)
	c.LedgerRepo = repositories.NewLedgerRepository(db)
	c.FeeProfitRepo = repositories.NewFeeProfitRepository(db)

	deriver, err := keyderiv.NewHDProvider(cfg.Derivation.MasterSeed, cfg.Derivation.Iterations)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key derivation: %w", err)
	}

	c.ChainProvider = chain.NewClient(chain.Config{
		APIKey:  cfg.Chain.APIKey,
		BaseURL: cfg.Chain.BaseURL,
		Timeout: time.Duration(cfg.Chain.TimeoutSeconds) * time.Second,
	}, log)

	txRunner := crediting.NewSQLTxRunner(db)

	c.AddressService = address.NewService(c.AddressRepo, c.TenantRepo, deriver, cfg.Chain, log)
	c.FeeCalculator = fees.NewCalculator(cfg.Fees)
	c.ReferralService = referral.NewService(c.TenantRepo, c.LedgerRepo, cfg.Referral, cfg.Chain.Asset, log)
	c.CreditingService = crediting.NewService(txRunner, c.TenantRepo, c.LedgerRepo, c.ReferralService, redis, log)
	c.WithdrawalService = withdrawal.NewService(
		txRunner, c.TenantRepo, c.LedgerRepo, c.FeeProfitRepo,
		c.FeeCalculator, c.AddressService, cfg.Chain.Asset, log,
	)

	if cfg.Monitor.Enabled {
		c.Monitor = tx_monitor.NewWorker(
			c.PendingRepo, c.AddressRepo, c.CreditingService, c.ChainProvider, redis,
			&tx_monitor.Config{
				Interval:         time.Duration(cfg.Monitor.IntervalSeconds) * time.Second,
				MinConfirmations: cfg.Chain.MinConfirmations,
				ScanTimeout:      time.Duration(cfg.Monitor.IntervalSeconds) * time.Second * 2 / 3,
			},
			log,
		)
	}

	c.RetentionWorker = retention.NewWorker(c.PendingRepo, cfg.Monitor, log.Zap())

	return c, nil
}
