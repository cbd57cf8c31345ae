package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/custody-service/custody_service/internal/domain/entities"
)

// FeeProfitRepository manages fee profit records produced by withdrawals
type FeeProfitRepository struct {
	db *sqlx.DB
}

// NewFeeProfitRepository creates a new fee profit repository
func NewFeeProfitRepository(db *sqlx.DB) *FeeProfitRepository {
	return &FeeProfitRepository{db: db}
}

// Create persists a fee profit record. The unique constraint on
// withdrawal_id guarantees at most one record per withdrawal; retries are
// absorbed without error.
func (r *FeeProfitRepository) Create(ctx context.Context, record *entities.FeeProfitRecord) error {
	query := `
		INSERT INTO fee_profit_records (
			withdrawal_id, tenant_id, original_amount, customer_fee,
			upstream_fee, profit_amount, profit_margin, profit_tx_hash,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (withdrawal_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		record.WithdrawalID,
		record.TenantID,
		record.OriginalAmount,
		record.CustomerFee,
		record.UpstreamFee,
		record.ProfitAmount,
		record.ProfitMargin,
		record.ProfitTxHash,
		record.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create fee profit record: %w", err)
	}

	return nil
}

// UpdateStatus marks a fee profit record as settled or failed
func (r *FeeProfitRepository) UpdateStatus(ctx context.Context, withdrawalID string, status entities.FeeProfitStatus, profitTxHash *string) error {
	query := `
		UPDATE fee_profit_records
		SET status = $1, profit_tx_hash = COALESCE($2, profit_tx_hash), updated_at = NOW()
		WHERE withdrawal_id = $3
	`

	if _, err := r.db.ExecContext(ctx, query, status, profitTxHash, withdrawalID); err != nil {
		return fmt.Errorf("failed to update fee profit record: %w", err)
	}

	return nil
}

// List returns fee profit records in a time window, newest first
func (r *FeeProfitRepository) List(ctx context.Context, from, to time.Time, limit, offset int) ([]entities.FeeProfitRecord, error) {
	query := `
		SELECT id, withdrawal_id, tenant_id, original_amount, customer_fee,
			   upstream_fee, profit_amount, profit_margin, profit_tx_hash,
			   status, created_at, updated_at
		FROM fee_profit_records
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	records := []entities.FeeProfitRecord{}
	if err := r.db.SelectContext(ctx, &records, query, from, to, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list fee profit records: %w", err)
	}

	return records, nil
}

// Stats aggregates fee profit records over a time window
func (r *FeeProfitRepository) Stats(ctx context.Context, from, to time.Time) (*entities.FeeProfitStats, error) {
	query := `
		SELECT COUNT(*) AS total_withdrawals,
			   COALESCE(SUM(customer_fee), 0) AS total_customer_fee,
			   COALESCE(SUM(upstream_fee), 0) AS total_upstream_fee,
			   COALESCE(SUM(profit_amount), 0) AS total_profit,
			   COALESCE(AVG(profit_margin), 0) AS average_margin
		FROM fee_profit_records
		WHERE created_at >= $1 AND created_at < $2
	`

	var stats entities.FeeProfitStats
	if err := r.db.GetContext(ctx, &stats, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to aggregate fee profit stats: %w", err)
	}

	return &stats, nil
}
