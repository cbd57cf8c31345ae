package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// PendingRepository manages the lifecycle of pending inbound transactions
type PendingRepository struct {
	db *sqlx.DB
}

// NewPendingRepository creates a new pending transaction repository
func NewPendingRepository(db *sqlx.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

// Create persists a new pending transaction
func (r *PendingRepository) Create(ctx context.Context, p *entities.PendingTransaction) error {
	query := `
		INSERT INTO pending_transactions (
			order_id, tenant_id, asset, address, amount,
			transfer_type, status, tx_hash, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		p.OrderID,
		p.TenantID,
		p.Asset,
		p.Address,
		p.Amount,
		p.TransferType,
		p.Status,
		p.TxHash,
		p.ExpiresAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create pending transaction: %w", err)
	}

	return nil
}

// GetByOrderID retrieves a pending transaction by its order ID
func (r *PendingRepository) GetByOrderID(ctx context.Context, orderID string) (*entities.PendingTransaction, error) {
	query := `
		SELECT id, order_id, tenant_id, asset, address, amount,
			   transfer_type, status, tx_hash, expires_at, created_at, updated_at
		FROM pending_transactions
		WHERE order_id = $1
	`

	var p entities.PendingTransaction
	err := r.db.GetContext(ctx, &p, query, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("PENDING_TRANSACTION")
		}
		return nil, fmt.Errorf("failed to get pending transaction: %w", err)
	}

	return &p, nil
}

// GetByTxHash retrieves a pending transaction by its observed chain hash
func (r *PendingRepository) GetByTxHash(ctx context.Context, txHash string) (*entities.PendingTransaction, error) {
	query := `
		SELECT id, order_id, tenant_id, asset, address, amount,
			   transfer_type, status, tx_hash, expires_at, created_at, updated_at
		FROM pending_transactions
		WHERE tx_hash = $1
	`

	var p entities.PendingTransaction
	err := r.db.GetContext(ctx, &p, query, txHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("PENDING_TRANSACTION")
		}
		return nil, fmt.Errorf("failed to get pending transaction by hash: %w", err)
	}

	return &p, nil
}

// ListNonTerminal returns all pending transactions that still need work
func (r *PendingRepository) ListNonTerminal(ctx context.Context) ([]entities.PendingTransaction, error) {
	query := `
		SELECT id, order_id, tenant_id, asset, address, amount,
			   transfer_type, status, tx_hash, expires_at, created_at, updated_at
		FROM pending_transactions
		WHERE status IN ($1, $2)
		ORDER BY created_at
	`

	items := []entities.PendingTransaction{}
	err := r.db.SelectContext(ctx, &items, query, entities.PendingStatusPending, entities.PendingStatusConfirming)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal transactions: %w", err)
	}

	return items, nil
}

// UpdateStatus transitions a pending transaction through the state machine.
// The transition is validated before the write and again in SQL, so a stale
// caller cannot overwrite a terminal state.
func (r *PendingRepository) UpdateStatus(ctx context.Context, id int64, from, to entities.PendingStatus) error {
	if err := from.ValidateTransition(to); err != nil {
		return domainerrors.InvalidTransitionError(string(from), string(to))
	}

	query := `
		UPDATE pending_transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update pending status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return domainerrors.InvalidTransitionError(string(from), string(to))
	}

	return nil
}

// SetTxHash attaches the observed chain hash to a pending transaction
func (r *PendingRepository) SetTxHash(ctx context.Context, id int64, txHash string) error {
	query := `
		UPDATE pending_transactions
		SET tx_hash = $1, updated_at = NOW()
		WHERE id = $2 AND tx_hash IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, txHash, id); err != nil {
		return fmt.Errorf("failed to set tx hash: %w", err)
	}

	return nil
}

// ExpireOverdue sweeps non-terminal transactions past their deadline into
// the expired state. Returns the number of rows expired.
func (r *PendingRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE pending_transactions
		SET status = $1, updated_at = NOW()
		WHERE status IN ($2, $3) AND expires_at < $4
	`

	result, err := r.db.ExecContext(ctx, query,
		entities.PendingStatusExpired,
		entities.PendingStatusPending,
		entities.PendingStatusConfirming,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue transactions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return rows, nil
}

// DeleteTerminalOlderThan removes terminal records older than the cutoff.
// Used by the retention worker.
func (r *PendingRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM pending_transactions
		WHERE status IN ($1, $2, $3) AND updated_at < $4
	`

	result, err := r.db.ExecContext(ctx, query,
		entities.PendingStatusConfirmed,
		entities.PendingStatusFailed,
		entities.PendingStatusExpired,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old terminal transactions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return rows, nil
}
