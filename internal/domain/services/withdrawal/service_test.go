package withdrawal

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
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/domain/services/fees"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
	"github.com/custody-service/custody_service/pkg/logger"
)

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

// rollbackTxRunner restores the fake tenant balances when the callback
// fails, mimicking a real transaction rollback.
type rollbackTxRunner struct {
	tenants *fakeTenants
}

func (r rollbackTxRunner) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	before := r.tenants.snapshot()
	if err := fn(nil); err != nil {
		r.tenants.restore(before)
		return err
	}
	return nil
}

type fakeTenants struct {
	mu       sync.Mutex
	tenants  map[int64]*entities.Tenant
	balances map[int64]decimal.Decimal
}

func newFakeTenants(t *entities.Tenant) *fakeTenants {
	return &fakeTenants{
		tenants:  map[int64]*entities.Tenant{t.ID: t},
		balances: map[int64]decimal.Decimal{t.ID: t.Balance},
	}
}

func (f *fakeTenants) GetByID(ctx context.Context, id int64) (*entities.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, domainerrors.NotFoundError("TENANT")
	}
	copy := *t
	copy.Balance = f.balances[id]
	return &copy, nil
}

func (f *fakeTenants) DebitBalanceInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, amount decimal.Decimal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[tenantID].LessThan(amount) {
		return false, nil
	}
	f.balances[tenantID] = f.balances[tenantID].Sub(amount)
	return true, nil
}

func (f *fakeTenants) snapshot() map[int64]decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]decimal.Decimal, len(f.balances))
	for id, b := range f.balances {
		out[id] = b
	}
	return out
}

func (f *fakeTenants) restore(balances map[int64]decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = balances
}

func (f *fakeTenants) balance(id int64) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[id]
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*entities.LedgerEntry
	fail    bool
}

func (f *fakeLedger) InsertInTx(ctx context.Context, tx *sqlx.Tx, entry *entities.LedgerEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errors.New("insert failed")
	}
	f.entries = append(f.entries, entry)
	return true, nil
}

type fakeFeeProfits struct {
	mu      sync.Mutex
	records []*entities.FeeProfitRecord
}

func (f *fakeFeeProfits) Create(ctx context.Context, record *entities.FeeProfitRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

type acceptAllValidator struct{}

func (acceptAllValidator) Validate(address string) error {
	if len(address) != 34 || address[0] != 'T' {
		return errors.New("bad address")
	}
	return nil
}

const goodAddress = "T000000000000000000000000000000042"

func newTestService(tenants *fakeTenants, ledger *fakeLedger, profits *fakeFeeProfits) *Service {
	calc := fees.NewCalculator(config.FeeConfig{
		FixedFee: 2.0, UpstreamFee: 1.0, PercentMin: 0.01, PercentMax: 0.05,
	})
	return NewService(passthroughTxRunner{}, tenants, ledger, profits, calc, acceptAllValidator{}, "USDT", logger.NewNop())
}

func TestWithdrawHappyPath(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{
		ID: 1, Status: entities.TenantStatusActive, Balance: decimal.NewFromInt(500),
	})
	ledger := &fakeLedger{}
	profits := &fakeFeeProfits{}
	svc := newTestService(tenants, ledger, profits)

	resp, err := svc.Withdraw(context.Background(), 1, &entities.WithdrawRequest{
		Amount: decimal.NewFromInt(100), Address: goodAddress,
	})
	require.NoError(t, err)

	assert.True(t, resp.Fee.Equal(decimal.NewFromInt(2)))
	assert.True(t, resp.NetAmount.Equal(decimal.NewFromInt(98)))
	assert.True(t, tenants.balance(1).Equal(decimal.NewFromInt(400)))

	require.Len(t, ledger.entries, 1)
	assert.True(t, ledger.entries[0].Amount.Equal(decimal.NewFromInt(-100)))
	assert.Equal(t, entities.TransferTypeWithdrawal, ledger.entries[0].TransferType)

	require.Len(t, profits.records, 1)
	assert.True(t, profits.records[0].ProfitAmount.Equal(decimal.NewFromInt(1)))
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{
		ID: 1, Status: entities.TenantStatusActive, Balance: decimal.NewFromInt(50),
	})
	svc := newTestService(tenants, &fakeLedger{}, &fakeFeeProfits{})

	_, err := svc.Withdraw(context.Background(), 1, &entities.WithdrawRequest{
		Amount: decimal.NewFromInt(100), Address: goodAddress,
	})
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_BALANCE", domainerrors.GetErrorCode(err))
	assert.True(t, tenants.balance(1).Equal(decimal.NewFromInt(50)))
}

func TestWithdrawConcurrentNeverOverdraws(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{
		ID: 1, Status: entities.TenantStatusActive, Balance: decimal.NewFromInt(100),
	})
	svc := newTestService(tenants, &fakeLedger{}, &fakeFeeProfits{})

	const workers = 10
	var wg sync.WaitGroup
	succeeded := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Withdraw(context.Background(), 1, &entities.WithdrawRequest{
				Amount: decimal.NewFromInt(60), Address: goodAddress,
			})
			succeeded[i] = err == nil
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range succeeded {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.False(t, tenants.balance(1).IsNegative())
}

func TestWithdrawInvalidAddress(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{
		ID: 1, Status: entities.TenantStatusActive, Balance: decimal.NewFromInt(500),
	})
	svc := newTestService(tenants, &fakeLedger{}, &fakeFeeProfits{})

	_, err := svc.Withdraw(context.Background(), 1, &entities.WithdrawRequest{
		Amount: decimal.NewFromInt(100), Address: "not-an-address",
	})
	require.Error(t, err)
	assert.Equal(t, "INVALID_WITHDRAWAL_ADDRESS", domainerrors.GetErrorCode(err))
}

func TestWithdrawInactiveTenantRejected(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{
		ID: 1, Status: entities.TenantStatusRegistered, Balance: decimal.NewFromInt(500),
	})
	svc := newTestService(tenants, &fakeLedger{}, &fakeFeeProfits{})

	_, err := svc.Withdraw(context.Background(), 1, &entities.WithdrawRequest{
		Amount: decimal.NewFromInt(100), Address: goodAddress,
	})
	assert.Error(t, err)
}

func TestWithdrawLedgerFailureRollsBackDebit(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{
		ID: 1, Status: entities.TenantStatusActive, Balance: decimal.NewFromInt(500),
	})
	ledger := &fakeLedger{fail: true}
	calc := fees.NewCalculator(config.FeeConfig{
		FixedFee: 2.0, UpstreamFee: 1.0, PercentMin: 0.01, PercentMax: 0.05,
	})
	svc := NewService(rollbackTxRunner{tenants: tenants}, tenants, ledger, &fakeFeeProfits{}, calc, acceptAllValidator{}, "USDT", logger.NewNop())

	_, err := svc.Withdraw(context.Background(), 1, &entities.WithdrawRequest{
		Amount: decimal.NewFromInt(100), Address: goodAddress,
	})
	require.Error(t, err)

	// The debit shares the transaction with the ledger insert, so the
	// failed insert must leave the balance untouched.
	assert.True(t, tenants.balance(1).Equal(decimal.NewFromInt(500)))
	assert.Empty(t, ledger.entries)
}

func TestWithdrawAmountMustCoverFee(t *testing.T) {
	tenants := newFakeTenants(&entities.Tenant{
		ID: 1, Status: entities.TenantStatusActive, Balance: decimal.NewFromInt(500),
	})
	svc := newTestService(tenants, &fakeLedger{}, &fakeFeeProfits{})

	_, err := svc.Withdraw(context.Background(), 1, &entities.WithdrawRequest{
		Amount: decimal.Zero, Address: goodAddress,
	})
	assert.Error(t, err)
}
