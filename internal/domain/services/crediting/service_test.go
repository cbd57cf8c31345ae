package crediting

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/pkg/logger"
)

// passthroughTxRunner executes the callback without a real transaction
type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

// fakeLedger simulates the unique constraint on tx hash
type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*entities.LedgerEntry
	failOn  string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*entities.LedgerEntry)}
}

func (f *fakeLedger) InsertInTx(ctx context.Context, tx *sqlx.Tx, entry *entities.LedgerEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.TxHash == f.failOn {
		return false, errors.New("insert failed")
	}
	if _, ok := f.entries[entry.TxHash]; ok {
		return false, nil
	}
	f.entries[entry.TxHash] = entry
	return true, nil
}

// fakeTenants tracks balances and activation in memory
type fakeTenants struct {
	mu       sync.Mutex
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
		f.balances[t.ID] = t.Balance
	}
	return f
}

func (f *fakeTenants) GetByID(ctx context.Context, id int64) (*entities.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, errors.New("tenant not found")
	}
	copy := *t
	copy.Balance = f.balances[id]
	return &copy, nil
}

func (f *fakeTenants) IncrementBalanceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[tenantID] = f.balances[tenantID].Add(amount)
	return nil
}

func (f *fakeTenants) ActivateInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[tenantID]
	if !ok {
		return false, errors.New("tenant not found")
	}
	if t.Status == entities.TenantStatusRegistered {
		t.Status = entities.TenantStatusActive
		return true, nil
	}
	return false, nil
}

func (f *fakeTenants) balance(id int64) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[id]
}

// recordingRewarder captures referral reward calls
type recordingRewarder struct {
	mu    sync.Mutex
	calls []int64
}

func (r *recordingRewarder) RewardInTx(ctx context.Context, tx *sqlx.Tx, invitee *entities.Tenant, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invitee.ID)
	return nil
}

func newTestService(tenants *fakeTenants, ledger *fakeLedger, rewarder ReferralRewarder) *Service {
	return NewService(passthroughTxRunner{}, tenants, ledger, rewarder, nil, logger.NewNop())
}

func TestCreditHappyPath(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{ID: 1, Status: entities.TenantStatusActive})
	svc := newTestService(tenants, newFakeLedger(), nil)

	res, err := svc.Credit(context.Background(), CreditRequest{
		TenantID:     1,
		Asset:        "USDT",
		Amount:       decimal.NewFromInt(50),
		TransferType: entities.TransferTypeRecharge,
		TxHash:       "hash-1",
		Source:       "test",
	})
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.False(t, res.Duplicate)
	assert.True(t, tenants.balance(1).Equal(decimal.NewFromInt(50)))
}

func TestCreditDuplicateAbsorbed(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{ID: 1, Status: entities.TenantStatusActive})
	svc := newTestService(tenants, newFakeLedger(), nil)

	req := CreditRequest{
		TenantID:     1,
		Asset:        "USDT",
		Amount:       decimal.NewFromInt(50),
		TransferType: entities.TransferTypeRecharge,
		TxHash:       "hash-dup",
		Source:       "test",
	}

	first, err := svc.Credit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Credited)

	second, err := svc.Credit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Credited)

	// Balance moved exactly once
	assert.True(t, tenants.balance(1).Equal(decimal.NewFromInt(50)))
}

func TestCreditConcurrentSameHashCreditsOnce(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{ID: 1, Status: entities.TenantStatusActive})
	svc := newTestService(tenants, newFakeLedger(), nil)

	req := CreditRequest{
		TenantID:     1,
		Asset:        "USDT",
		Amount:       decimal.NewFromInt(25),
		TransferType: entities.TransferTypeRecharge,
		TxHash:       "hash-race",
		Source:       "test",
	}

	const workers = 16
	var wg sync.WaitGroup
	credited := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Credit(context.Background(), req)
			if err == nil && res.Credited {
				credited[i] = true
			}
		}(i)
	}
	wg.Wait()

	count := 0
	for _, c := range credited {
		if c {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.True(t, tenants.balance(1).Equal(decimal.NewFromInt(25)))
}

func TestCreditActivationActivatesAndRewards(t *testing.T) {
	inviter := int64(9)
	tenants := newFakeTenants(
		&entities.Tenant{ID: 1, Status: entities.TenantStatusRegistered, InvitedBy: &inviter},
		&entities.Tenant{ID: 9, Status: entities.TenantStatusActive},
	)
	rewarder := &recordingRewarder{}
	svc := newTestService(tenants, newFakeLedger(), rewarder)

	res, err := svc.Credit(context.Background(), CreditRequest{
		TenantID:     1,
		Asset:        "USDT",
		Amount:       decimal.NewFromInt(100),
		TransferType: entities.TransferTypeActivation,
		TxHash:       "hash-act",
		Source:       "test",
	})
	require.NoError(t, err)
	assert.True(t, res.Activated)
	require.Len(t, rewarder.calls, 1)
	assert.Equal(t, int64(1), rewarder.calls[0])
}

func TestCreditSecondActivationDoesNotRewardAgain(t *testing.T) {
	inviter := int64(9)
	tenants := newFakeTenants(
		&entities.Tenant{ID: 1, Status: entities.TenantStatusRegistered, InvitedBy: &inviter},
		&entities.Tenant{ID: 9, Status: entities.TenantStatusActive},
	)
	rewarder := &recordingRewarder{}
	svc := newTestService(tenants, newFakeLedger(), rewarder)

	_, err := svc.Credit(context.Background(), CreditRequest{
		TenantID: 1, Asset: "USDT", Amount: decimal.NewFromInt(100),
		TransferType: entities.TransferTypeActivation, TxHash: "act-1", Source: "test",
	})
	require.NoError(t, err)

	res, err := svc.Credit(context.Background(), CreditRequest{
		TenantID: 1, Asset: "USDT", Amount: decimal.NewFromInt(200),
		TransferType: entities.TransferTypeActivation, TxHash: "act-2", Source: "test",
	})
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.False(t, res.Activated)
	assert.Len(t, rewarder.calls, 1)
}

func TestCreditRejectsInvalidInput(t *testing.T) {
	svc := newTestService(newFakeTenants(), newFakeLedger(), nil)

	_, err := svc.Credit(context.Background(), CreditRequest{
		TenantID: 1, Amount: decimal.NewFromInt(10),
		TransferType: entities.TransferTypeRecharge, TxHash: "",
	})
	assert.Error(t, err)

	_, err = svc.Credit(context.Background(), CreditRequest{
		TenantID: 1, Amount: decimal.Zero,
		TransferType: entities.TransferTypeRecharge, TxHash: "h",
	})
	assert.Error(t, err)

	_, err = svc.Credit(context.Background(), CreditRequest{
		TenantID: 1, Amount: decimal.NewFromInt(10),
		TransferType: entities.TransferType("bogus"), TxHash: "h",
	})
	assert.Error(t, err)
}

func TestCreditFailedInsertDoesNotMoveBalance(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{ID: 1, Status: entities.TenantStatusActive})
	ledger := newFakeLedger()
	ledger.failOn = "hash-bad"
	svc := newTestService(tenants, ledger, nil)

	_, err := svc.Credit(context.Background(), CreditRequest{
		TenantID: 1, Asset: "USDT", Amount: decimal.NewFromInt(50),
		TransferType: entities.TransferTypeRecharge, TxHash: "hash-bad", Source: "test",
	})
	assert.Error(t, err)
	assert.True(t, tenants.balance(1).IsZero())
}
