// Package referral pays the one-time invitation reward when an invited
// tenant makes their activation deposit.
package referral

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
	"github.com/custody-service/custody_service/pkg/logger"
)

// LedgerWriter appends ledger entries with the unique tx hash guard
type LedgerWriter interface {
	InsertInTx(ctx context.Context, tx *sqlx.Tx, entry *entities.LedgerEntry) (bool, error)
}

// TenantStore reads tenants and increments balances
type TenantStore interface {
	GetByID(ctx context.Context, id int64) (*entities.Tenant, error)
	IncrementBalanceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, amount decimal.Decimal) error
}

// Service pays referral rewards
type Service struct {
	tenants    TenantStore
	ledger     LedgerWriter
	rewardRate decimal.Decimal
	asset      string
	logger     *logger.Logger
}

// NewService creates a new referral service
func NewService(tenants TenantStore, ledger LedgerWriter, cfg config.ReferralConfig, asset string, log *logger.Logger) *Service {
	return &Service{
		tenants:    tenants,
		ledger:     ledger,
		rewardRate: decimal.NewFromFloat(cfg.RewardRate),
		asset:      asset,
		logger:     log,
	}
}

// rewardTxHash builds the synthetic hash for a reward entry. One hash per
// invitee means the ledger's unique constraint caps the cascade at a single
// reward no matter how the activation is replayed.
func rewardTxHash(inviteeID int64) string {
	return fmt.Sprintf("reward-activation-%d", inviteeID)
}

// RewardInTx credits the inviter with the configured share of the invitee's
// activation deposit, inside the caller's open transaction. No-op when the
// invitee has no inviter, the inviter is unknown, or the reward was already
// paid. The reward never cascades past one hop.
func (s *Service) RewardInTx(ctx context.Context, tx *sqlx.Tx, invitee *entities.Tenant, activationAmount decimal.Decimal) error {
	if !invitee.HasInviter() {
		return nil
	}

	inviter, err := s.tenants.GetByID(ctx, *invitee.InvitedBy)
	if err != nil {
		// A dangling inviter reference must not block the activation
		s.logger.Warn("Inviter not found, skipping reward",
			"invitee_id", invitee.ID,
			"inviter_id", *invitee.InvitedBy,
		)
		return nil
	}

	reward := activationAmount.Mul(s.rewardRate)
	if !reward.IsPositive() {
		return nil
	}

	inserted, err := s.ledger.InsertInTx(ctx, tx, &entities.LedgerEntry{
		TenantID:     inviter.ID,
		Asset:        s.asset,
		Amount:       reward,
		TransferType: entities.TransferTypeInvitationReward,
		TxHash:       rewardTxHash(invitee.ID),
	})
	if err != nil {
		return fmt.Errorf("failed to record referral reward: %w", err)
	}
	if !inserted {
		// Reward already paid for this invitee
		return nil
	}

	if err := s.tenants.IncrementBalanceInTx(ctx, tx, inviter.ID, reward); err != nil {
		return fmt.Errorf("failed to credit referral reward: %w", err)
	}

	s.logger.Info("Referral reward paid",
		"inviter_id", inviter.ID,
		"invitee_id", invitee.ID,
		"reward", reward.String(),
	)

	return nil
}
