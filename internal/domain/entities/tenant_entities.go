package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// TenantStatus represents the lifecycle state of a tenant account
type TenantStatus int

const (
	// TenantStatusRegistered means the tenant exists but has never made an
	// activation deposit
	TenantStatusRegistered TenantStatus = 1

	// TenantStatusActive means the tenant has completed at least one
	// activation deposit
	TenantStatusActive TenantStatus = 2

	// TenantStatusSuspended means the tenant is blocked from withdrawals
	TenantStatusSuspended TenantStatus = 3
)

// IsActive returns true if the tenant has been activated
func (s TenantStatus) IsActive() bool {
	return s == TenantStatusActive
}

// Tenant represents a customer account holding a custodial balance
type Tenant struct {
	ID        int64           `json:"id" db:"id"`
	Status    TenantStatus    `json:"status" db:"status"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	InvitedBy *int64          `json:"invited_by,omitempty" db:"invited_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// HasInviter returns true if the tenant was referred by another tenant
func (t *Tenant) HasInviter() bool {
	return t.InvitedBy != nil && *t.InvitedBy > 0
}
