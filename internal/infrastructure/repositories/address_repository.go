package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// AddressRepository manages derived deposit addresses
type AddressRepository struct {
	db *sqlx.DB
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(db *sqlx.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// NextDerivationIndex reserves the next derivation index. The sequence is
// monotonic and never reused, so two concurrent allocations can never derive
// the same address.
func (r *AddressRepository) NextDerivationIndex(ctx context.Context) (int64, error) {
	var index int64
	err := r.db.GetContext(ctx, &index, `SELECT nextval('deposit_address_index_seq')`)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve derivation index: %w", err)
	}
	return index, nil
}

// Insert persists a derived address for a tenant and asset. Returns false
// without error when another request already bound an address for the same
// tenant and asset; the caller should re-read the winner.
func (r *AddressRepository) Insert(ctx context.Context, addr *entities.DepositAddress) (bool, error) {
	query := `
		INSERT INTO deposit_addresses (tenant_id, asset, address, derivation_index, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, asset) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, addr.TenantID, addr.Asset, addr.Address, addr.DerivationIndex)
	if err != nil {
		return false, fmt.Errorf("failed to insert deposit address: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return rows > 0, nil
}

// GetByTenantAndAsset retrieves the address bound to a tenant for an asset
func (r *AddressRepository) GetByTenantAndAsset(ctx context.Context, tenantID int64, asset string) (*entities.DepositAddress, error) {
	query := `
		SELECT id, tenant_id, asset, address, derivation_index, created_at
		FROM deposit_addresses
		WHERE tenant_id = $1 AND asset = $2
	`

	var addr entities.DepositAddress
	err := r.db.GetContext(ctx, &addr, query, tenantID, asset)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("DEPOSIT_ADDRESS")
		}
		return nil, fmt.Errorf("failed to get deposit address: %w", err)
	}

	return &addr, nil
}

// GetByAddress resolves a chain address back to its owning tenant
func (r *AddressRepository) GetByAddress(ctx context.Context, address string) (*entities.DepositAddress, error) {
	query := `
		SELECT id, tenant_id, asset, address, derivation_index, created_at
		FROM deposit_addresses
		WHERE address = $1
	`

	var addr entities.DepositAddress
	err := r.db.GetContext(ctx, &addr, query, address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.UnknownAddressError(address)
		}
		return nil, fmt.Errorf("failed to resolve address: %w", err)
	}

	return &addr, nil
}

// ListAll returns every managed deposit address. Used by the transaction
// monitor to sweep for inbound transfers.
func (r *AddressRepository) ListAll(ctx context.Context) ([]entities.DepositAddress, error) {
	query := `
		SELECT id, tenant_id, asset, address, derivation_index, created_at
		FROM deposit_addresses
		ORDER BY id
	`

	addrs := []entities.DepositAddress{}
	if err := r.db.SelectContext(ctx, &addrs, query); err != nil {
		return nil, fmt.Errorf("failed to list deposit addresses: %w", err)
	}

	return addrs, nil
}
