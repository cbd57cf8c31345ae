package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransferType represents the business classification of an inbound transfer
type TransferType string

const (
	// TransferTypeActivation is a tenant's first deposit; it activates the
	// account and may trigger a referral reward
	TransferTypeActivation TransferType = "activation"

	// TransferTypeRecharge is any subsequent top-up deposit
	TransferTypeRecharge TransferType = "recharge"

	// TransferTypeWithdrawal is an outbound transfer
	TransferTypeWithdrawal TransferType = "withdrawal"

	// TransferTypeInvitationReward is a referral bonus credited to an inviter
	TransferTypeInvitationReward TransferType = "invitation_reward"
)

// Validate checks if the transfer type is valid
func (t TransferType) Validate() error {
	switch t {
	case TransferTypeActivation, TransferTypeRecharge, TransferTypeWithdrawal, TransferTypeInvitationReward:
		return nil
	default:
		return fmt.Errorf("invalid transfer type: %s", t)
	}
}

// IsCredit returns true if the transfer type increases tenant balance
func (t TransferType) IsCredit() bool {
	return t != TransferTypeWithdrawal
}

// DepositAddress binds a derived chain address to exactly one tenant and asset
type DepositAddress struct {
	ID              int64     `json:"id" db:"id"`
	TenantID        int64     `json:"tenant_id" db:"tenant_id"`
	Asset           string    `json:"asset" db:"asset"`
	Address         string    `json:"address" db:"address"`
	DerivationIndex int64     `json:"derivation_index" db:"derivation_index"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// PendingTransaction tracks an expected or observed inbound transfer until it
// reaches a terminal state
type PendingTransaction struct {
	ID           int64           `json:"id" db:"id"`
	OrderID      string          `json:"order_id" db:"order_id"`
	TenantID     int64           `json:"tenant_id" db:"tenant_id"`
	Asset        string          `json:"asset" db:"asset"`
	Address      string          `json:"address" db:"address"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	TransferType TransferType    `json:"transfer_type" db:"transfer_type"`
	Status       PendingStatus   `json:"status" db:"status"`
	TxHash       *string         `json:"tx_hash,omitempty" db:"tx_hash"`
	ExpiresAt    time.Time       `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// IsExpired returns true if the pending transaction passed its deadline
// without confirming
func (p *PendingTransaction) IsExpired(now time.Time) bool {
	return !p.Status.IsTerminal() && now.After(p.ExpiresAt)
}

// LedgerEntry is the immutable record of a settled balance movement. The
// transaction hash is unique across all entries, which is what makes
// crediting idempotent.
type LedgerEntry struct {
	ID           int64           `json:"id" db:"id"`
	TenantID     int64           `json:"tenant_id" db:"tenant_id"`
	Asset        string          `json:"asset" db:"asset"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	TransferType TransferType    `json:"transfer_type" db:"transfer_type"`
	TxHash       string          `json:"tx_hash" db:"tx_hash"`
	FromAddress  *string         `json:"from_address,omitempty" db:"from_address"`
	ToAddress    *string         `json:"to_address,omitempty" db:"to_address"`
	BlockHeight  *int64          `json:"block_height,omitempty" db:"block_height"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// FeeProfitStatus represents the settlement state of a fee profit record
type FeeProfitStatus string

const (
	FeeProfitStatusPending   FeeProfitStatus = "pending"
	FeeProfitStatusCompleted FeeProfitStatus = "completed"
	FeeProfitStatusFailed    FeeProfitStatus = "failed"
)

// FeeProfitRecord captures the fee economics of a single withdrawal
type FeeProfitRecord struct {
	ID             int64           `json:"id" db:"id"`
	WithdrawalID   string          `json:"withdrawal_id" db:"withdrawal_id"`
	TenantID       int64           `json:"tenant_id" db:"tenant_id"`
	OriginalAmount decimal.Decimal `json:"original_amount" db:"original_amount"`
	CustomerFee    decimal.Decimal `json:"customer_fee" db:"customer_fee"`
	UpstreamFee    decimal.Decimal `json:"upstream_fee" db:"upstream_fee"`
	ProfitAmount   decimal.Decimal `json:"profit_amount" db:"profit_amount"`
	ProfitMargin   decimal.Decimal `json:"profit_margin" db:"profit_margin"`
	ProfitTxHash   *string         `json:"profit_tx_hash,omitempty" db:"profit_tx_hash"`
	Status         FeeProfitStatus `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// DepositAddressResponse is returned by the deposit address endpoint
type DepositAddressResponse struct {
	TenantID int64  `json:"tenant_id"`
	Asset    string `json:"asset"`
	Address  string `json:"address"`
}

// BalanceResponse is returned by the balance endpoint
type BalanceResponse struct {
	TenantID int64           `json:"tenant_id"`
	Asset    string          `json:"asset"`
	Balance  decimal.Decimal `json:"balance"`
	Active   bool            `json:"active"`
}

// InitiateDepositRequest starts a tracked deposit with an expiry window
type InitiateDepositRequest struct {
	Amount       decimal.Decimal `json:"amount" binding:"required" validate:"required"`
	TransferType TransferType    `json:"transfer_type" binding:"required" validate:"required,oneof=activation recharge"`
}

// InitiateDepositResponse is returned when a tracked deposit is created
type InitiateDepositResponse struct {
	OrderID   string          `json:"order_id"`
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// WithdrawRequest is the client payload for a withdrawal
type WithdrawRequest struct {
	Amount  decimal.Decimal `json:"amount" binding:"required" validate:"required"`
	Address string          `json:"address" binding:"required" validate:"required"`
}

// WithdrawResponse is returned when a withdrawal is accepted
type WithdrawResponse struct {
	WithdrawalID string          `json:"withdrawal_id"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	TxHash       string          `json:"tx_hash"`
	Status       string          `json:"status"`
}

// TransactionListResponse is a paginated slice of ledger entries
type TransactionListResponse struct {
	Transactions []LedgerEntry `json:"transactions"`
	Total        int64         `json:"total"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
}

// ErrorResponse is the standard error envelope for the API
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// FeeProfitStats aggregates fee profit records over a period
type FeeProfitStats struct {
	TotalWithdrawals int64           `json:"total_withdrawals" db:"total_withdrawals"`
	TotalCustomerFee decimal.Decimal `json:"total_customer_fee" db:"total_customer_fee"`
	TotalUpstreamFee decimal.Decimal `json:"total_upstream_fee" db:"total_upstream_fee"`
	TotalProfit      decimal.Decimal `json:"total_profit" db:"total_profit"`
	AverageMargin    decimal.Decimal `json:"average_margin" db:"average_margin"`
}
