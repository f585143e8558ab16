package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/avekor/giftcode-vending/internal/catalog"
	"github.com/avekor/giftcode-vending/internal/model"
	"github.com/avekor/giftcode-vending/internal/payment"
	"github.com/avekor/giftcode-vending/internal/queue"
	queue_publisher "github.com/avekor/giftcode-vending/internal/service"
)

// WebhookHandler accepts payment confirmations relayed by the trusted
// chat gateway on behalf of the payment provider.  The caller
// authenticates with the shared gateway key; on the winning confirmation
// the response carries the code secret so the gateway can deliver it to
// the buyer.  Repeat confirmations for the same order fail generically.
type WebhookHandler struct {
	Vendor         Vendor
	Catalog        catalog.Catalog
	Correlator     *payment.Correlator
	GatewayKeyHash string
	Log            *zap.Logger

	publishPaid func(ctx context.Context, ev queue.OrderPaidEvent)
}

// NewWebhookHandler wires the webhook handler.
func NewWebhookHandler(v Vendor, cat catalog.Catalog, cor *payment.Correlator, gatewayKeyHash, amqpURL string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		Vendor:         v,
		Catalog:        cat,
		Correlator:     cor,
		GatewayKeyHash: gatewayKeyHash,
		Log:            log,
		publishPaid: func(ctx context.Context, ev queue.OrderPaidEvent) {
			_ = queue_publisher.PublishOrderPaid(ctx, amqpURL, ev, log)
		},
	}
}

type webhookRequest struct {
	PaymentRef string `json:"payment_ref"`
	OrderID    string `json:"order_id"`
	BuyerID    int64  `json:"buyer_id"`
}

// ConfirmPayment finalizes the order identified by the provider's
// payment reference.  The reference resolves through the redis fast
// path first and falls back to the durable ledger lookup, so a
// confirmation arriving after a restart still lands.
// POST /v1/payments/webhook
func (h *WebhookHandler) ConfirmPayment(c echo.Context) error {
	key := c.Request().Header.Get("X-Gateway-Key")
	if key == "" || bcrypt.CompareHashAndPassword([]byte(h.GatewayKeyHash), []byte(key)) != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req webhookRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if req.PaymentRef == "" && (req.OrderID == "" || req.BuyerID == 0) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_ref is required"})
	}

	ctx := c.Request().Context()
	o, err := h.resolveOrder(ctx, req)
	if err != nil {
		return ledgerError(c, err)
	}
	// Metadata mismatches get the same generic answer as unknown
	// references: the caller learns nothing about what exists.
	if req.OrderID != "" && req.OrderID != o.ID {
		return c.JSON(http.StatusConflict, echo.Map{"error": "could not process"})
	}
	if req.BuyerID != 0 && req.BuyerID != o.BuyerID {
		return c.JSON(http.StatusConflict, echo.Map{"error": "could not process"})
	}

	secret, err := h.Vendor.Finalize(ctx, o.ID, o.BuyerID)
	if err != nil {
		return ledgerError(c, err)
	}

	// Re-read for the paid_at stamp; the event is best-effort, the sale
	// is already committed.
	if paid, err := h.Vendor.GetOrder(ctx, o.ID, o.BuyerID); err == nil {
		o = paid
	}
	afterSale(ctx, h.Catalog, h.Correlator, h.publishPaid, o)

	return c.JSON(http.StatusOK, echo.Map{
		"status":   "paid",
		"order_id": o.ID,
		"buyer_id": o.BuyerID,
		"sku":      o.SKU,
		"secret":   secret,
	})
}

func (h *WebhookHandler) resolveOrder(ctx context.Context, req webhookRequest) (*model.Order, error) {
	if req.PaymentRef == "" {
		return h.Vendor.GetOrder(ctx, req.OrderID, req.BuyerID)
	}
	if _, err := h.Correlator.Resolve(ctx, req.PaymentRef); err != nil {
		return nil, err
	}
	return h.Vendor.ResolveOrderByPaymentRef(ctx, req.PaymentRef)
}
