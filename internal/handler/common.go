package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avekor/giftcode-vending/internal/ledger"
	"github.com/avekor/giftcode-vending/internal/model"
)

// Vendor is the slice of the reservation manager the HTTP layer drives.
// *ledger.Ledger satisfies it; tests substitute a fake.
type Vendor interface {
	Reserve(ctx context.Context, sku string, buyerID int64) (*model.Order, error)
	Release(ctx context.Context, orderID string, buyerID int64) error
	Finalize(ctx context.Context, orderID string, buyerID int64) (string, error)
	GetOrder(ctx context.Context, orderID string, buyerID int64) (*model.Order, error)
	AvailableCounts(ctx context.Context) (map[string]int, error)
	InsertCode(ctx context.Context, sku, secret string) error
	ListAvailable(ctx context.Context, sku string) ([]model.Code, error)
	ResolveOrderByPaymentRef(ctx context.Context, ref string) (*model.Order, error)
	ListRecentOrders(ctx context.Context, limit int) ([]model.Order, error)
	CountDistinctBuyers(ctx context.Context) (int64, error)
	PaidTotals(ctx context.Context) (map[string]int64, error)
	TTL() time.Duration
}

// getBuyerID extracts the buyer id placed in the context by the JWT
// middleware.
func getBuyerID(c echo.Context) (int64, error) {
	if v, ok := c.Get("buyer_id").(int64); ok && v != 0 {
		return v, nil
	}
	return 0, errors.New("missing buyer_id in context")
}

// ledgerError maps ledger failures onto HTTP responses.  ErrNotFound
// and ErrInvalidState deliberately share one generic body so a caller
// cannot probe which order ids exist or what state they are in; only
// out-of-stock is named, since the buyer needs to know it.  Anything
// else is a storage failure the caller may retry.
func ledgerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrOutOfStock):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not in stock"})
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "could not process"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}
