// Package withdrawal debits tenant balances for outbound transfers and
// records the fee profit split for every withdrawal.
package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/domain/services/fees"
	"github.com/custody-service/custody_service/pkg/logger"
)

// AddressValidator checks withdrawal destination addresses
type AddressValidator interface {
	Validate(address string) error
}

// TenantStore reads tenants and moves balances
type TenantStore interface {
	GetByID(ctx context.Context, id int64) (*entities.Tenant, error)
	DebitBalanceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, amount decimal.Decimal) (bool, error)
}

// LedgerWriter appends ledger entries
type LedgerWriter interface {
	InsertInTx(ctx context.Context, tx *sqlx.Tx, entry *entities.LedgerEntry) (bool, error)
}

// TxRunner executes a function inside a database transaction
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// FeeProfitStore persists fee profit records
type FeeProfitStore interface {
	Create(ctx context.Context, record *entities.FeeProfitRecord) error
}

// Service processes withdrawals
type Service struct {
	txRunner   TxRunner
	tenants    TenantStore
	ledger     LedgerWriter
	feeProfits FeeProfitStore
	calculator *fees.Calculator
	validator  AddressValidator
	asset      string
	logger     *logger.Logger
}

// NewService creates a new withdrawal service
func NewService(
	txRunner TxRunner,
	tenants TenantStore,
	ledger LedgerWriter,
	feeProfits FeeProfitStore,
	calculator *fees.Calculator,
	validator AddressValidator,
	asset string,
	log *logger.Logger,
) *Service {
	return &Service{
		txRunner:   txRunner,
		tenants:    tenants,
		ledger:     ledger,
		feeProfits: feeProfits,
		calculator: calculator,
		validator:  validator,
		asset:      asset,
		logger:     log,
	}
}

// Withdraw debits the tenant for amount plus fee, appends the ledger entry,
// and records the fee profit split. The debit is a conditional SQL update,
// so concurrent withdrawals can never take the balance negative.
func (s *Service) Withdraw(ctx context.Context, tenantID int64, req *entities.WithdrawRequest) (*entities.WithdrawResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, domainerrors.ValidationError("amount", "withdrawal amount must be positive")
	}
	if err := s.validator.Validate(req.Address); err != nil {
		return nil, domainerrors.InvalidWithdrawalAddressError(req.Address)
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.Status.IsActive() {
		return nil, domainerrors.ValidationError("tenant", "tenant account is not active")
	}

	quote := s.calculator.Quote(req.Amount)
	totalDebit := req.Amount

	if quote.NetAmount.IsNegative() || quote.NetAmount.IsZero() {
		return nil, domainerrors.ValidationError("amount", "withdrawal amount does not cover the fee")
	}

	withdrawalID := uuid.New().String()
	txHash := fmt.Sprintf("withdrawal-%s", withdrawalID)

	// The conditional debit and the ledger entry commit together or not at
	// all. A failure anywhere rolls the debit back; there is no window
	// where money left the balance without a ledger record.
	err = s.txRunner.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		debited, err := s.tenants.DebitBalanceInTx(ctx, tx, tenantID, totalDebit)
		if err != nil {
			return err
		}
		if !debited {
			return domainerrors.InsufficientBalanceError(tenant.Balance.String(), totalDebit.String())
		}

		_, err = s.ledger.InsertInTx(ctx, tx, &entities.LedgerEntry{
			TenantID:     tenantID,
			Asset:        s.asset,
			Amount:       totalDebit.Neg(),
			TransferType: entities.TransferTypeWithdrawal,
			TxHash:       txHash,
			ToAddress:    &req.Address,
		})
		return err
	})
	if err != nil {
		var domainErr *domainerrors.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record withdrawal: %w", err)
	}

	if err := s.feeProfits.Create(ctx, &entities.FeeProfitRecord{
		WithdrawalID:   withdrawalID,
		TenantID:       tenantID,
		OriginalAmount: req.Amount,
		CustomerFee:    quote.CustomerFee,
		UpstreamFee:    quote.UpstreamFee,
		ProfitAmount:   quote.ProfitAmount,
		ProfitMargin:   quote.ProfitMargin,
		Status:         entities.FeeProfitStatusPending,
	}); err != nil {
		// The withdrawal itself succeeded; profit accounting is repairable
		s.logger.Error("Failed to record fee profit",
			"withdrawal_id", withdrawalID,
			"error", err,
		)
	}

	s.logger.Info("Withdrawal accepted",
		"withdrawal_id", withdrawalID,
		"tenant_id", tenantID,
		"amount", req.Amount.String(),
		"fee", quote.CustomerFee.String(),
		"net_amount", quote.NetAmount.String(),
	)

	return &entities.WithdrawResponse{
		WithdrawalID: withdrawalID,
		Amount:       req.Amount,
		Fee:          quote.CustomerFee,
		NetAmount:    quote.NetAmount,
		TxHash:       txHash,
		Status:       "accepted",
	}, nil
}
