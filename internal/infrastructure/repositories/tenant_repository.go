package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// TenantRepository manages tenant accounts and their custodial balances
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*entities.Tenant, error) {
	query := `
		SELECT id, status, balance, invited_by, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var tenant entities.Tenant
	err := r.db.GetContext(ctx, &tenant, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("TENANT")
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &tenant, nil
}

// Create inserts a new tenant account
func (r *TenantRepository) Create(ctx context.Context, tenant *entities.Tenant) error {
	query := `
		INSERT INTO tenants (status, balance, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query, tenant.Status, tenant.Balance, tenant.InvitedBy).
		Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// IncrementBalanceInTx durably increases a tenant's balance inside an open
// transaction. The write is an atomic SQL increment, never a read-modify-write.
func (r *TenantRepository) IncrementBalanceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, amount decimal.Decimal) error {
	query := `
		UPDATE tenants
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := tx.ExecContext(ctx, query, amount, tenantID)
	if err != nil {
		return fmt.Errorf("failed to increment balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("TENANT")
	}

	return nil
}

// DebitBalanceInTx conditionally decreases a tenant's balance inside an
// open transaction, so the debit commits or rolls back together with the
// withdrawal's ledger entry. The WHERE guard makes over-withdrawal
// impossible even under concurrent requests. Returns false when the balance
// could not cover the amount.
func (r *TenantRepository) DebitBalanceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE tenants
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
	`

	result, err := tx.ExecContext(ctx, query, amount, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to debit balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return rows > 0, nil
}

// ActivateInTx marks a tenant as active inside an open transaction. Returns
// true when the tenant transitioned from registered to active in this call,
// which is what gates the one-time referral reward.
func (r *TenantRepository) ActivateInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64) (bool, error) {
	query := `
		UPDATE tenants
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := tx.ExecContext(ctx, query, entities.TenantStatusActive, tenantID, entities.TenantStatusRegistered)
	if err != nil {
		return false, fmt.Errorf("failed to activate tenant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return rows > 0, nil
}

// GetBalance retrieves the current balance for a tenant
func (r *TenantRepository) GetBalance(ctx context.Context, tenantID int64) (decimal.Decimal, error) {
	query := `SELECT balance FROM tenants WHERE id = $1`

	var balance decimal.Decimal
	err := r.db.GetContext(ctx, &balance, query, tenantID)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, domainerrors.NotFoundError("TENANT")
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}
