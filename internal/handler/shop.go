package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/avekor/giftcode-vending/internal/catalog"
	"github.com/avekor/giftcode-vending/internal/model"
	"github.com/avekor/giftcode-vending/internal/payment"
	"github.com/avekor/giftcode-vending/internal/queue"
	queue_publisher "github.com/avekor/giftcode-vending/internal/service"
)

// ShopHandler serves the buyer-facing routes: catalog browsing and the
// order lifecycle from reservation to payment.
type ShopHandler struct {
	Vendor     Vendor
	Catalog    catalog.Catalog
	Correlator *payment.Correlator
	Log        *zap.Logger

	// publishPaid is swappable in tests; the default publishes to
	// RabbitMQ best-effort.
	publishPaid func(ctx context.Context, ev queue.OrderPaidEvent)
}

// NewShopHandler wires the buyer handler to the ledger and the broker.
func NewShopHandler(v Vendor, cat catalog.Catalog, cor *payment.Correlator, amqpURL string, log *zap.Logger) *ShopHandler {
	return &ShopHandler{
		Vendor:     v,
		Catalog:    cat,
		Correlator: cor,
		Log:        log,
		publishPaid: func(ctx context.Context, ev queue.OrderPaidEvent) {
			_ = queue_publisher.PublishOrderPaid(ctx, amqpURL, ev, log)
		},
	}
}

type catalogItem struct {
	SKU        string `json:"sku"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Available  int    `json:"available"`
}

// GetCatalog lists every denomination with its live availability.
// GET /v1/catalog
func (h *ShopHandler) GetCatalog(c echo.Context) error {
	counts, err := h.Vendor.AvailableCounts(c.Request().Context())
	if err != nil {
		return ledgerError(c, err)
	}
	items := make([]catalogItem, 0, len(h.Catalog))
	for _, sku := range h.Catalog.SKUs() {
		e := h.Catalog[sku]
		items = append(items, catalogItem{
			SKU:        e.SKU,
			Title:      e.Title,
			PriceCents: e.PriceCents,
			Currency:   e.Currency,
			Available:  counts[sku],
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

type createOrderRequest struct {
	SKU string `json:"sku"`
}

// CreateOrder reserves one code for the caller and opens a pending
// order against it.
// POST /v1/orders
func (h *ShopHandler) CreateOrder(c echo.Context) error {
	buyerID, err := getBuyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createOrderRequest
	if err := c.Bind(&req); err != nil || req.SKU == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sku is required"})
	}

	o, err := h.Vendor.Reserve(c.Request().Context(), req.SKU, buyerID)
	if err != nil {
		return ledgerError(c, err)
	}
	// Cache the payment reference so the provider webhook resolves
	// without a table scan.  Best-effort only.
	h.Correlator.Remember(c.Request().Context(), o.PaymentRef, o.ID)

	return c.JSON(http.StatusCreated, orderResponse(o, h.Vendor.TTL()))
}

// GetOrder returns the caller's view of one order.
// GET /v1/orders/:id
func (h *ShopHandler) GetOrder(c echo.Context) error {
	buyerID, err := getBuyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	o, err := h.Vendor.GetOrder(c.Request().Context(), c.Param("id"), buyerID)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, orderResponse(o, h.Vendor.TTL()))
}

// CancelOrder releases the reservation behind a pending order.
// DELETE /v1/orders/:id
func (h *ShopHandler) CancelOrder(c echo.Context) error {
	buyerID, err := getBuyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if err := h.Vendor.Release(c.Request().Context(), orderID, buyerID); err != nil {
		return ledgerError(c, err)
	}
	if o, err := h.Vendor.GetOrder(c.Request().Context(), orderID, buyerID); err == nil {
		h.Correlator.Forget(c.Request().Context(), o.PaymentRef)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "cancelled"})
}

// PayOrder finalizes the caller's pending order and returns the code
// secret.  This is the mock-payment path: the buyer confirms payment
// directly instead of the provider webhook doing it.  Exactly one call
// ever receives the secret; repeats fail generically.
// POST /v1/orders/:id/pay
func (h *ShopHandler) PayOrder(c echo.Context) error {
	buyerID, err := getBuyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	ctx := c.Request().Context()

	secret, err := h.Vendor.Finalize(ctx, orderID, buyerID)
	if err != nil {
		return ledgerError(c, err)
	}

	o, err := h.Vendor.GetOrder(ctx, orderID, buyerID)
	if err != nil {
		// The sale is committed; reply with the secret even if the
		// re-read failed.
		h.Log.Warn("paid order re-read failed", zap.String("order_id", orderID), zap.Error(err))
		return c.JSON(http.StatusOK, echo.Map{"order_id": orderID, "status": "paid", "secret": secret})
	}
	afterSale(ctx, h.Catalog, h.Correlator, h.publishPaid, o)

	resp := orderResponse(o, h.Vendor.TTL())
	resp["secret"] = secret
	return c.JSON(http.StatusOK, resp)
}

// afterSale runs the post-commit side effects of a sale: dropping the
// correlation cache entry and emitting the order.paid event.  Neither
// may fail the request.
func afterSale(ctx context.Context, cat catalog.Catalog, cor *payment.Correlator, publish func(context.Context, queue.OrderPaidEvent), o *model.Order) {
	cor.Forget(ctx, o.PaymentRef)

	ev := queue.OrderPaidEvent{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		SKU:        o.SKU,
		PriceCents: o.PriceCents,
		Currency:   o.Currency,
	}
	if e, ok := cat.Get(o.SKU); ok {
		ev.Title = e.Title
	}
	if o.PaidAt != nil {
		ev.PaidAt = o.PaidAt.UTC().Format(time.RFC3339)
	}
	go publish(context.WithoutCancel(ctx), ev)
}

// orderResponse is the buyer-visible shape of an order.  The payment
// reference is included so the buyer's client can hand it to the
// payment provider; the code secret never appears here.
func orderResponse(o *model.Order, ttl time.Duration) echo.Map {
	m := echo.Map{
		"order_id":    o.ID,
		"sku":         o.SKU,
		"price_cents": o.PriceCents,
		"currency":    o.Currency,
		"status":      string(o.Status),
		"payment_ref": o.PaymentRef,
		"created_at":  o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.Status == model.OrderPending {
		m["expires_at"] = o.CreatedAt.Add(ttl).UTC().Format(time.RFC3339)
	}
	if o.PaidAt != nil {
		m["paid_at"] = o.PaidAt.UTC().Format(time.RFC3339)
	}
	return m
}
