package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/domain/services/crediting"
)

const testSecret = "webhook-test-secret"

type stubResolver struct {
	addrs map[string]*entities.DepositAddress
}

func (s *stubResolver) Resolve(ctx context.Context, address string) (*entities.DepositAddress, error) {
	if addr, ok := s.addrs[address]; ok {
		return addr, nil
	}
	return nil, domainerrors.UnknownAddressError(address)
}

type stubCreditor struct {
	seen     map[string]bool
	requests []crediting.CreditRequest
	err      error
}

func newStubCreditor() *stubCreditor {
	return &stubCreditor{seen: make(map[string]bool)}
}

func (s *stubCreditor) Credit(ctx context.Context, req crediting.CreditRequest) (*crediting.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.seen[req.TxHash] {
		return &crediting.Result{Duplicate: true}, nil
	}
	s.seen[req.TxHash] = true
	s.requests = append(s.requests, req)
	return &crediting.Result{Credited: true}, nil
}

type stubPending struct {
	orders map[string]*entities.PendingTransaction
}

func (s *stubPending) GetByOrderID(ctx context.Context, orderID string) (*entities.PendingTransaction, error) {
	if o, ok := s.orders[orderID]; ok {
		return o, nil
	}
	return nil, domainerrors.NotFoundError("PENDING_TRANSACTION")
}

func (s *stubPending) SetTxHash(ctx context.Context, id int64, txHash string) error {
	for _, o := range s.orders {
		if o.ID == id {
			o.TxHash = &txHash
		}
	}
	return nil
}

func (s *stubPending) UpdateStatus(ctx context.Context, id int64, from, to entities.PendingStatus) error {
	for _, o := range s.orders {
		if o.ID == id {
			o.Status = to
		}
	}
	return nil
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookRig(creditor *stubCreditor) (*gin.Engine, *stubResolver, *stubPending) {
	gin.SetMode(gin.TestMode)

	resolver := &stubResolver{addrs: map[string]*entities.DepositAddress{
		"Taddr1": {ID: 1, TenantID: 7, Asset: "USDT", Address: "Taddr1"},
	}}
	pending := &stubPending{orders: map[string]*entities.PendingTransaction{}}

	h := NewWebhookHandler(resolver, creditor, pending, "USDT", testSecret, zap.NewNop())

	r := gin.New()
	r.POST("/webhooks/transfers", h.HandleTransfer)
	return r, resolver, pending
}

func postWebhook(r *gin.Engine, payload TransferWebhookPayload, signed bool) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/transfers", bytes.NewReader(body))
	if signed {
		req.Header.Set("X-Webhook-Signature", sign(body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func confirmedPayload() TransferWebhookPayload {
	return TransferWebhookPayload{
		EventID:     "evt-1",
		EventType:   "transfer.confirmed",
		TxHash:      "hash-1",
		FromAddress: "Tsender",
		ToAddress:   "Taddr1",
		Asset:       "USDT",
		Direction:   "in",
		Amount:      decimal.NewFromInt(100),
		BlockHeight: 1234,
	}
}

func TestWebhookCreditsConfirmedTransfer(t *testing.T) {
	creditor := newStubCreditor()
	r, _, _ := newWebhookRig(creditor)

	w := postWebhook(r, confirmedPayload(), true)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, creditor.requests, 1)
	assert.Equal(t, int64(7), creditor.requests[0].TenantID)
	assert.Equal(t, "webhook", creditor.requests[0].Source)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	creditor := newStubCreditor()
	r, _, _ := newWebhookRig(creditor)

	w := postWebhook(r, confirmedPayload(), false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, creditor.requests)
}

func TestWebhookDuplicateReturnsOK(t *testing.T) {
	creditor := newStubCreditor()
	r, _, _ := newWebhookRig(creditor)

	first := postWebhook(r, confirmedPayload(), true)
	second := postWebhook(r, confirmedPayload(), true)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, creditor.requests, 1)
	assert.Contains(t, second.Body.String(), "duplicate")
}

func TestWebhookUnknownAddressAcknowledged(t *testing.T) {
	creditor := newStubCreditor()
	r, _, _ := newWebhookRig(creditor)

	payload := confirmedPayload()
	payload.ToAddress = "Tstranger"
	w := postWebhook(r, payload, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Empty(t, creditor.requests)
}

func TestWebhookOutboundDirectionIgnored(t *testing.T) {
	creditor := newStubCreditor()
	r, _, _ := newWebhookRig(creditor)

	payload := confirmedPayload()
	payload.Direction = "out"
	w := postWebhook(r, payload, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Empty(t, creditor.requests)
}

func TestWebhookMissingDirectionRejected(t *testing.T) {
	creditor := newStubCreditor()
	r, _, _ := newWebhookRig(creditor)

	payload := confirmedPayload()
	payload.Direction = ""
	w := postWebhook(r, payload, true)

	// An unclassifiable transfer must never be credited as if it were
	// inbound
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, creditor.requests)
}

func TestWebhookWrongAssetIgnored(t *testing.T) {
	creditor := newStubCreditor()
	r, _, _ := newWebhookRig(creditor)

	payload := confirmedPayload()
	payload.Asset = "BTC"
	w := postWebhook(r, payload, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, creditor.requests)
}

func TestWebhookUpstreamUnavailableReturns503(t *testing.T) {
	creditor := newStubCreditor()
	creditor.err = domainerrors.ServiceUnavailableError("chain", nil)
	r, _, _ := newWebhookRig(creditor)

	w := postWebhook(r, confirmedPayload(), true)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebhookSettlesMatchingOrder(t *testing.T) {
	creditor := newStubCreditor()
	r, _, pending := newWebhookRig(creditor)
	pending.orders["ord-1"] = &entities.PendingTransaction{
		ID: 5, OrderID: "ord-1", TenantID: 7, Address: "Taddr1",
		Amount:       decimal.NewFromInt(100),
		TransferType: entities.TransferTypeActivation,
		Status:       entities.PendingStatusPending,
	}

	payload := confirmedPayload()
	payload.OrderID = "ord-1"
	w := postWebhook(r, payload, true)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, creditor.requests, 1)
	assert.Equal(t, entities.TransferTypeActivation, creditor.requests[0].TransferType)
	assert.Equal(t, entities.PendingStatusConfirmed, pending.orders["ord-1"].Status)
}

func TestWebhookTransferFailedMarksOrder(t *testing.T) {
	creditor := newStubCreditor()
	r, _, pending := newWebhookRig(creditor)
	pending.orders["ord-2"] = &entities.PendingTransaction{
		ID: 6, OrderID: "ord-2", TenantID: 7, Address: "Taddr1",
		Amount: decimal.NewFromInt(100),
		Status: entities.PendingStatusPending,
	}

	payload := TransferWebhookPayload{
		EventID:   "evt-2",
		EventType: "transfer.failed",
		OrderID:   "ord-2",
	}
	w := postWebhook(r, payload, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entities.PendingStatusFailed, pending.orders["ord-2"].Status)
}

func TestWebhookUnknownEventTypeIgnored(t *testing.T) {
	creditor := newStubCreditor()
	r, _, _ := newWebhookRig(creditor)

	payload := confirmedPayload()
	payload.EventType = "something.else"
	w := postWebhook(r, payload, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, creditor.requests)
}
