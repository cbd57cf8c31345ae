package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/domain/services/address"
	"github.com/custody-service/custody_service/internal/domain/services/withdrawal"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
	"github.com/custody-service/custody_service/internal/infrastructure/repositories"
	"github.com/custody-service/custody_service/pkg/logger"
)

// TenantReader reads tenant accounts
type TenantReader interface {
	GetByID(ctx context.Context, id int64) (*entities.Tenant, error)
}

// WalletHandlers serves the client-facing custody endpoints
type WalletHandlers struct {
	addresses  *address.Service
	withdrawal *withdrawal.Service
	tenants    TenantReader
	ledger     *repositories.LedgerRepository
	pending    *repositories.PendingRepository
	asset      string
	pendingTTL time.Duration
	validator  *validator.Validate
	logger     *logger.Logger
}

// NewWalletHandlers creates the wallet handler set
func NewWalletHandlers(
	addresses *address.Service,
	withdrawalSvc *withdrawal.Service,
	tenants TenantReader,
	ledger *repositories.LedgerRepository,
	pending *repositories.PendingRepository,
	cfg *config.Config,
	log *logger.Logger,
) *WalletHandlers {
	return &WalletHandlers{
		addresses:  addresses,
		withdrawal: withdrawalSvc,
		tenants:    tenants,
		ledger:     ledger,
		pending:    pending,
		asset:      cfg.Chain.Asset,
		pendingTTL: time.Duration(cfg.Monitor.PendingTTLMinutes) * time.Minute,
		validator:  validator.New(),
		logger:     log,
	}
}

// GetDepositAddress returns the tenant's deposit address, allocating one on
// first use
func (h *WalletHandlers) GetDepositAddress(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondUnauthorized(c, "Authentication required")
		return
	}

	addr, err := h.addresses.GetOrAllocate(c.Request.Context(), tenantID, h.asset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, entities.DepositAddressResponse{
		TenantID: addr.TenantID,
		Asset:    addr.Asset,
		Address:  addr.Address,
	})
}

// GetBalance returns the tenant's custodial balance
func (h *WalletHandlers) GetBalance(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondUnauthorized(c, "Authentication required")
		return
	}

	tenant, err := h.tenants.GetByID(c.Request.Context(), tenantID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, entities.BalanceResponse{
		TenantID: tenant.ID,
		Asset:    h.asset,
		Balance:  tenant.Balance,
		Active:   tenant.Status.IsActive(),
	})
}

// ListTransactions returns the tenant's ledger entries, newest first
func (h *WalletHandlers) ListTransactions(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondUnauthorized(c, "Authentication required")
		return
	}

	limit, offset := parsePagination(c)

	entries, total, err := h.ledger.ListByTenant(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list transactions", "tenant_id", tenantID, "error", err)
		respondInternalError(c, "Failed to list transactions")
		return
	}

	c.JSON(http.StatusOK, entities.TransactionListResponse{
		Transactions: entries,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	})
}

// InitiateDeposit creates a tracked pending deposit with an expiry window.
// The monitor settles it once a matching transfer confirms on chain.
func (h *WalletHandlers) InitiateDeposit(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondUnauthorized(c, "Authentication required")
		return
	}

	var req entities.InitiateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	if !req.Amount.IsPositive() {
		respondBadRequest(c, "Deposit amount must be positive")
		return
	}
	if req.TransferType != entities.TransferTypeActivation && req.TransferType != entities.TransferTypeRecharge {
		respondBadRequest(c, "Transfer type must be activation or recharge")
		return
	}

	addr, err := h.addresses.GetOrAllocate(c.Request.Context(), tenantID, h.asset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	pending := &entities.PendingTransaction{
		OrderID:      uuid.New().String(),
		TenantID:     tenantID,
		Asset:        h.asset,
		Address:      addr.Address,
		Amount:       req.Amount,
		TransferType: req.TransferType,
		Status:       entities.PendingStatusPending,
		ExpiresAt:    time.Now().Add(h.pendingTTL),
	}

	if err := h.pending.Create(c.Request.Context(), pending); err != nil {
		h.logger.Error("Failed to create pending deposit", "tenant_id", tenantID, "error", err)
		respondInternalError(c, "Failed to initiate deposit")
		return
	}

	c.JSON(http.StatusCreated, entities.InitiateDepositResponse{
		OrderID:   pending.OrderID,
		Address:   addr.Address,
		Amount:    pending.Amount,
		ExpiresAt: pending.ExpiresAt,
	})
}

// GetDepositStatus returns the state of a tracked deposit order
func (h *WalletHandlers) GetDepositStatus(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondUnauthorized(c, "Authentication required")
		return
	}

	orderID := c.Param("order_id")
	pending, err := h.pending.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if pending.TenantID != tenantID {
		respondNotFound(c, "Order not found")
		return
	}

	c.JSON(http.StatusOK, pending)
}

// Withdraw debits the tenant and accepts an outbound transfer
func (h *WalletHandlers) Withdraw(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondUnauthorized(c, "Authentication required")
		return
	}

	var req entities.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	resp, err := h.withdrawal.Withdraw(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit = 20
	offset = 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
