package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
	"github.com/custody-service/custody_service/pkg/logger"
)

type fakeLedger struct {
	entries map[string]*entities.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*entities.LedgerEntry)}
}

func (f *fakeLedger) InsertInTx(ctx context.Context, tx *sqlx.Tx, entry *entities.LedgerEntry) (bool, error) {
	if _, ok := f.entries[entry.TxHash]; ok {
		return false, nil
	}
	f.entries[entry.TxHash] = entry
	return true, nil
}

type fakeTenants struct {
	tenants  map[int64]*entities.Tenant
	balances map[int64]decimal.Decimal
}

func newFakeTenants(tenants ...*entities.Tenant) *fakeTenants {
	f := &fakeTenants{
		tenants:  make(map[int64]*entities.Tenant),
		balances: make(map[int64]decimal.Decimal),
	}
	for _, t := range tenants {
		f.tenants[t.ID] = t
		f.balances[t.ID] = decimal.Zero
	}
	return f
}

func (f *fakeTenants) GetByID(ctx context.Context, id int64) (*entities.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, errors.New("tenant not found")
	}
	return t, nil
}

func (f *fakeTenants) IncrementBalanceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, amount decimal.Decimal) error {
	f.balances[tenantID] = f.balances[tenantID].Add(amount)
	return nil
}

func newTestService(tenants *fakeTenants, ledger *fakeLedger) *Service {
	return NewService(tenants, ledger, config.ReferralConfig{RewardRate: 0.10}, "USDT", logger.NewNop())
}

func TestRewardPaysInviterTenPercent(t *testing.T) {
	inviterID := int64(9)
	inviter := &entities.Tenant{ID: 9, Status: entities.TenantStatusActive}
	invitee := &entities.Tenant{ID: 1, InvitedBy: &inviterID}

	tenants := newFakeTenants(inviter, invitee)
	ledger := newFakeLedger()
	svc := newTestService(tenants, ledger)

	err := svc.RewardInTx(context.Background(), nil, invitee, decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.True(t, tenants.balances[9].Equal(decimal.NewFromInt(10)))
	entry := ledger.entries["reward-activation-1"]
	require.NotNil(t, entry)
	assert.Equal(t, entities.TransferTypeInvitationReward, entry.TransferType)
	assert.Equal(t, int64(9), entry.TenantID)
}

func TestRewardIdempotentPerInvitee(t *testing.T) {
	inviterID := int64(9)
	inviter := &entities.Tenant{ID: 9}
	invitee := &entities.Tenant{ID: 1, InvitedBy: &inviterID}

	tenants := newFakeTenants(inviter, invitee)
	svc := newTestService(tenants, newFakeLedger())

	require.NoError(t, svc.RewardInTx(context.Background(), nil, invitee, decimal.NewFromInt(100)))
	require.NoError(t, svc.RewardInTx(context.Background(), nil, invitee, decimal.NewFromInt(100)))

	assert.True(t, tenants.balances[9].Equal(decimal.NewFromInt(10)))
}

func TestRewardSkippedWithoutInviter(t *testing.T) {
	invitee := &entities.Tenant{ID: 1}
	tenants := newFakeTenants(invitee)
	ledger := newFakeLedger()
	svc := newTestService(tenants, ledger)

	err := svc.RewardInTx(context.Background(), nil, invitee, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Empty(t, ledger.entries)
}

func TestRewardSkippedForDanglingInviter(t *testing.T) {
	missing := int64(404)
	invitee := &entities.Tenant{ID: 1, InvitedBy: &missing}
	tenants := newFakeTenants(invitee)
	ledger := newFakeLedger()
	svc := newTestService(tenants, ledger)

	err := svc.RewardInTx(context.Background(), nil, invitee, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Empty(t, ledger.entries)
}

func TestRewardSingleHopOnly(t *testing.T) {
	// Grandparent invited the inviter, but only the direct inviter is paid
	grandparentID := int64(99)
	inviterID := int64(9)
	grandparent := &entities.Tenant{ID: 99}
	inviter := &entities.Tenant{ID: 9, InvitedBy: &grandparentID}
	invitee := &entities.Tenant{ID: 1, InvitedBy: &inviterID}

	tenants := newFakeTenants(grandparent, inviter, invitee)
	svc := newTestService(tenants, newFakeLedger())

	require.NoError(t, svc.RewardInTx(context.Background(), nil, invitee, decimal.NewFromInt(100)))

	assert.True(t, tenants.balances[9].Equal(decimal.NewFromInt(10)))
	assert.True(t, tenants.balances[99].IsZero())
}
