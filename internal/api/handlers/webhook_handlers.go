package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/domain/services/crediting"
)

// AddressResolver maps chain addresses to their owning tenants
type AddressResolver interface {
	Resolve(ctx context.Context, address string) (*entities.DepositAddress, error)
}

// Creditor settles confirmed transfers
type Creditor interface {
	Credit(ctx context.Context, req crediting.CreditRequest) (*crediting.Result, error)
}

// PendingMatcher attaches observed hashes to open deposit orders
type PendingMatcher interface {
	GetByOrderID(ctx context.Context, orderID string) (*entities.PendingTransaction, error)
	SetTxHash(ctx context.Context, id int64, txHash string) error
	UpdateStatus(ctx context.Context, id int64, from, to entities.PendingStatus) error
}

// WebhookHandler ingests transfer notifications from the chain provider
type WebhookHandler struct {
	resolver      AddressResolver
	creditor      Creditor
	pending       PendingMatcher
	asset         string
	webhookSecret string
	logger        *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(resolver AddressResolver, creditor Creditor, pending PendingMatcher, asset, webhookSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		resolver:      resolver,
		creditor:      creditor,
		pending:       pending,
		asset:         asset,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// TransferWebhookPayload is the chain provider's notification format
type TransferWebhookPayload struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	TxHash      string          `json:"tx_hash"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Asset       string          `json:"asset"`
	Direction   string          `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	BlockHeight int64           `json:"block_height"`
	OrderID     string          `json:"order_id,omitempty"`
}

// HandleTransfer handles confirmed transfer notifications
// POST /webhooks/transfers
func (h *WebhookHandler) HandleTransfer(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	if !h.verifySignature(signature, rawBody) {
		h.logger.Warn("Invalid webhook signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload TransferWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.Error("Failed to parse webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	h.logger.Info("Received transfer webhook",
		zap.String("event_id", payload.EventID),
		zap.String("event_type", payload.EventType),
		zap.String("tx_hash", payload.TxHash))

	switch payload.EventType {
	case "transfer.confirmed":
		h.handleTransferConfirmed(c, payload)
	case "transfer.failed":
		h.handleTransferFailed(c, payload)
	default:
		// Unknown events are acknowledged so the provider stops retrying
		h.logger.Debug("Ignoring unhandled webhook event",
			zap.String("event_type", payload.EventType))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func (h *WebhookHandler) handleTransferConfirmed(c *gin.Context, payload TransferWebhookPayload) {
	ctx := c.Request.Context()

	if payload.TxHash == "" || !payload.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transfer payload"})
		return
	}
	if payload.Direction == "" {
		// A transfer without a direction cannot be classified; rejecting
		// it beats guessing and crediting an outbound leg.
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing transfer direction"})
		return
	}
	if payload.Direction != "in" {
		// Outbound legs of our own withdrawals come back through the same
		// feed and must never be credited
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if payload.Asset != "" && payload.Asset != h.asset {
		// Wrong-asset transfers are acknowledged but never credited
		h.logger.Warn("Ignoring transfer for unsupported asset",
			zap.String("asset", payload.Asset), zap.String("tx_hash", payload.TxHash))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	addr, err := h.resolver.Resolve(ctx, payload.ToAddress)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			// Not our address. Acknowledge so the provider stops retrying.
			h.logger.Warn("Transfer to unmanaged address",
				zap.String("to_address", payload.ToAddress),
				zap.String("tx_hash", payload.TxHash))
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		h.logger.Error("Failed to resolve address", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolution failed"})
		return
	}

	transferType := entities.TransferTypeRecharge
	var orderRef *entities.PendingTransaction
	if payload.OrderID != "" {
		order, err := h.pending.GetByOrderID(ctx, payload.OrderID)
		if err == nil && order.TenantID == addr.TenantID && !order.Status.IsTerminal() {
			transferType = order.TransferType
			orderRef = order
		}
	}

	blockHeight := payload.BlockHeight
	result, err := h.creditor.Credit(ctx, crediting.CreditRequest{
		TenantID:     addr.TenantID,
		Asset:        addr.Asset,
		Amount:       payload.Amount,
		TransferType: transferType,
		TxHash:       payload.TxHash,
		FromAddress:  &payload.FromAddress,
		ToAddress:    &payload.ToAddress,
		BlockHeight:  &blockHeight,
		Source:       "webhook",
	})
	if err != nil {
		if domainerrors.IsServiceUnavailable(err) {
			// 503 tells the provider to redeliver later
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
			return
		}
		h.logger.Error("Failed to credit webhook transfer",
			zap.String("tx_hash", payload.TxHash), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credit failed"})
		return
	}

	if orderRef != nil && result.Credited {
		if err := h.pending.SetTxHash(ctx, orderRef.ID, payload.TxHash); err != nil {
			h.logger.Warn("Failed to attach hash to order", zap.Error(err))
		}
		if err := h.pending.UpdateStatus(ctx, orderRef.ID, orderRef.Status, entities.PendingStatusConfirmed); err != nil {
			h.logger.Warn("Failed to settle order", zap.Error(err))
		}
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "credited"})
}

func (h *WebhookHandler) handleTransferFailed(c *gin.Context, payload TransferWebhookPayload) {
	ctx := c.Request.Context()

	if payload.OrderID != "" {
		order, err := h.pending.GetByOrderID(ctx, payload.OrderID)
		if err == nil && !order.Status.IsTerminal() {
			if err := h.pending.UpdateStatus(ctx, order.ID, order.Status, entities.PendingStatusFailed); err != nil {
				h.logger.Warn("Failed to mark order failed", zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

func (h *WebhookHandler) verifySignature(signature string, body []byte) bool {
	if h.webhookSecret == "" {
		h.logger.Warn("Webhook secret not configured - skipping verification")
		return true
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
