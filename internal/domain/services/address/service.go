// Package address allocates deterministic deposit addresses for tenants.
// Each tenant gets exactly one address per asset; allocation is race-safe
// across concurrent requests and service instances.
package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/custody-service/custody_service/internal/adapters/keyderiv"
	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
	"github.com/custody-service/custody_service/pkg/logger"
)

// AddressRepository is the persistence contract for deposit addresses
type AddressRepository interface {
	NextDerivationIndex(ctx context.Context) (int64, error)
	Insert(ctx context.Context, addr *entities.DepositAddress) (bool, error)
	GetByTenantAndAsset(ctx context.Context, tenantID int64, asset string) (*entities.DepositAddress, error)
	GetByAddress(ctx context.Context, address string) (*entities.DepositAddress, error)
}

// TenantReader looks up tenant accounts
type TenantReader interface {
	GetByID(ctx context.Context, id int64) (*entities.Tenant, error)
}

// Service allocates and resolves deposit addresses
type Service struct {
	addresses AddressRepository
	tenants   TenantReader
	deriver   keyderiv.Provider
	prefix    string
	length    int
	logger    *logger.Logger
}

// NewService creates a new address service
func NewService(addresses AddressRepository, tenants TenantReader, deriver keyderiv.Provider, cfg config.ChainConfig, log *logger.Logger) *Service {
	return &Service{
		addresses: addresses,
		tenants:   tenants,
		deriver:   deriver,
		prefix:    cfg.AddressPrefix,
		length:    cfg.AddressLength,
		logger:    log,
	}
}

// GetOrAllocate returns the tenant's deposit address for an asset, deriving
// and binding a new one on first use. Two concurrent first calls both
// return the same address: the loser of the insert race re-reads the
// winner's row. The reserved index of the loser is simply burned, which is
// harmless since indexes are never reused.
func (s *Service) GetOrAllocate(ctx context.Context, tenantID int64, asset string) (*entities.DepositAddress, error) {
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	existing, err := s.addresses.GetByTenantAndAsset(ctx, tenantID, asset)
	if err == nil {
		return existing, nil
	}
	if !domainerrors.IsNotFound(err) {
		return nil, err
	}

	index, err := s.addresses.NextDerivationIndex(ctx)
	if err != nil {
		return nil, err
	}

	derived, err := s.deriver.DeriveAddress(index)
	if err != nil {
		return nil, domainerrors.AddressDerivationError(index, err)
	}

	if err := s.Validate(derived); err != nil {
		return nil, domainerrors.AddressDerivationError(index, err)
	}

	addr := &entities.DepositAddress{
		TenantID:        tenantID,
		Asset:           asset,
		Address:         derived,
		DerivationIndex: index,
	}

	inserted, err := s.addresses.Insert(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the allocation race; the winner's address is authoritative
		return s.addresses.GetByTenantAndAsset(ctx, tenantID, asset)
	}

	s.logger.Info("Allocated deposit address",
		"tenant_id", tenantID,
		"asset", asset,
		"derivation_index", index,
	)

	return addr, nil
}

// Resolve maps a chain address back to its owning tenant
func (s *Service) Resolve(ctx context.Context, address string) (*entities.DepositAddress, error) {
	return s.addresses.GetByAddress(ctx, address)
}

// Validate checks that an address matches the expected chain format
func (s *Service) Validate(address string) error {
	if !strings.HasPrefix(address, s.prefix) {
		return fmt.Errorf("address must start with %q", s.prefix)
	}
	if len(address) != s.length {
		return fmt.Errorf("address must be %d characters, got %d", s.length, len(address))
	}
	return nil
}
