package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custody-service/custody_service/internal/adapters/chain"
	"github.com/custody-service/custody_service/internal/infrastructure/repositories"
	"github.com/custody-service/custody_service/pkg/logger"
)

// MonitorStatusReporter reports the transaction monitor's state
type MonitorStatusReporter interface {
	Status() map[string]interface{}
}

// AdminHandlers serves operator-facing endpoints
type AdminHandlers struct {
	feeProfits *repositories.FeeProfitRepository
	monitor    MonitorStatusReporter
	resolver   AddressResolver
	provider   chain.QueryProvider
	logger     *logger.Logger
}

// NewAdminHandlers creates the admin handler set
func NewAdminHandlers(
	feeProfits *repositories.FeeProfitRepository,
	monitor MonitorStatusReporter,
	resolver AddressResolver,
	provider chain.QueryProvider,
	log *logger.Logger,
) *AdminHandlers {
	return &AdminHandlers{
		feeProfits: feeProfits,
		monitor:    monitor,
		resolver:   resolver,
		provider:   provider,
		logger:     log,
	}
}

// ListFeeProfits returns fee profit records in a time window
// GET /admin/fee-profits?from=...&to=...
func (h *AdminHandlers) ListFeeProfits(c *gin.Context) {
	from, to, err := parseTimeWindow(c)
	if err != nil {
		respondBadRequest(c, "Invalid time window")
		return
	}

	limit, offset := parsePagination(c)

	records, err := h.feeProfits.List(c.Request.Context(), from, to, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list fee profits", "error", err)
		respondInternalError(c, "Failed to list fee profits")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"from":    from,
		"to":      to,
		"limit":   limit,
		"offset":  offset,
	})
}

// FeeProfitStats returns aggregated fee profit numbers for a time window
// GET /admin/fee-profits/stats?from=...&to=...
func (h *AdminHandlers) FeeProfitStats(c *gin.Context) {
	from, to, err := parseTimeWindow(c)
	if err != nil {
		respondBadRequest(c, "Invalid time window")
		return
	}

	stats, err := h.feeProfits.Stats(c.Request.Context(), from, to)
	if err != nil {
		h.logger.Error("Failed to aggregate fee profits", "error", err)
		respondInternalError(c, "Failed to aggregate fee profits")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
		"from":  from,
		"to":    to,
	})
}

// MonitorStatus reports the transaction monitor's last sweep
// GET /admin/monitor/status
func (h *AdminHandlers) MonitorStatus(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"running": false})
		return
	}
	c.JSON(http.StatusOK, h.monitor.Status())
}

// AddressBalance reports the on-chain balance of a managed deposit address,
// for reconciling custody records against chain state
// GET /admin/addresses/:address/balance
func (h *AdminHandlers) AddressBalance(c *gin.Context) {
	address := c.Param("address")

	addr, err := h.resolver.Resolve(c.Request.Context(), address)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	balance, err := h.provider.GetBalance(c.Request.Context(), address)
	if err != nil {
		h.logger.Error("Failed to query on-chain balance", "address", address, "error", err)
		respondError(c, http.StatusServiceUnavailable, "UPSTREAM_PROVIDER_ERROR",
			"Chain provider unavailable", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":   address,
		"tenant_id": addr.TenantID,
		"asset":     addr.Asset,
		"balance":   balance,
	})
}

// parseTimeWindow reads from/to query params, defaulting to the last 30 days
func parseTimeWindow(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}

	return from, to, nil
}
