package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// LedgerRepository manages the immutable ledger of settled balance movements
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// InsertInTx appends a ledger entry inside an open transaction. The unique
// constraint on tx_hash is the idempotency guard. Returns false without
// error when the hash was already recorded, so the caller can absorb the
// duplicate and skip the balance increment.
func (r *LedgerRepository) InsertInTx(ctx context.Context, tx *sqlx.Tx, entry *entities.LedgerEntry) (bool, error) {
	query := `
		INSERT INTO transactions (
			tenant_id, asset, amount, transfer_type, tx_hash,
			from_address, to_address, block_height, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (tx_hash) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, query,
		entry.TenantID,
		entry.Asset,
		entry.Amount,
		entry.TransferType,
		entry.TxHash,
		entry.FromAddress,
		entry.ToAddress,
		entry.BlockHeight,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return rows > 0, nil
}

// GetByTxHash retrieves a ledger entry by transaction hash
func (r *LedgerRepository) GetByTxHash(ctx context.Context, txHash string) (*entities.LedgerEntry, error) {
	query := `
		SELECT id, tenant_id, asset, amount, transfer_type, tx_hash,
			   from_address, to_address, block_height, created_at
		FROM transactions
		WHERE tx_hash = $1
	`

	var entry entities.LedgerEntry
	err := r.db.GetContext(ctx, &entry, query, txHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("LEDGER_ENTRY")
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return &entry, nil
}

// ExistsByTxHash reports whether a transaction hash has already been credited
func (r *LedgerRepository) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE tx_hash = $1)`, txHash)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger entry existence: %w", err)
	}
	return exists, nil
}

// ListByTenant returns a tenant's ledger entries newest first, paginated
func (r *LedgerRepository) ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]entities.LedgerEntry, int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM transactions WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	query := `
		SELECT id, tenant_id, asset, amount, transfer_type, tx_hash,
			   from_address, to_address, block_height, created_at
		FROM transactions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	entries := []entities.LedgerEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, tenantID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	return entries, total, nil
}

// HasActivationCredit reports whether a tenant has ever received an
// activation deposit
func (r *LedgerRepository) HasActivationCredit(ctx context.Context, tenantID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE tenant_id = $1 AND transfer_type = $2)`,
		tenantID, entities.TransferTypeActivation)
	if err != nil {
		return false, fmt.Errorf("failed to check activation credit: %w", err)
	}
	return exists, nil
}
