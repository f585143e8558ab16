package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avekor/giftcode-vending/internal/catalog"
	"github.com/avekor/giftcode-vending/internal/clock"
	"github.com/avekor/giftcode-vending/internal/metrics"
	"github.com/avekor/giftcode-vending/internal/model"
)

// Ledger is the reservation manager: the only component that mutates
// codes and orders, always through the three atomic transitions reserve,
// release and finalize plus the expiry sweep.  The catalog is an
// injected read-only lookup; the reservation TTL bounds how long a
// pending order may hold a code.
type Ledger struct {
	store Store
	cat   catalog.Catalog
	clk   clock.Clock
	ttl   time.Duration
	log   *zap.Logger
}

// New constructs a Ledger.  ttl must be positive; a nil logger is
// replaced with a no-op one.
func New(store Store, cat catalog.Catalog, clk clock.Clock, ttl time.Duration, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, cat: cat, clk: clk, ttl: ttl, log: log}
}

// newOrderID generates an opaque 16-character hex order id from
// crypto/rand so order numbers cannot be enumerated or predicted from
// database sequence values.
func newOrderID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Reserve atomically takes the oldest available code for sku out of
// stock, binds it to a new pending order for buyerID and snapshots the
// catalog price.  Inventory drains FIFO per SKU.  It returns
// ErrNotFound for an unknown SKU and ErrOutOfStock when the SKU is
// drained; in both cases no order is created.
func (l *Ledger) Reserve(ctx context.Context, sku string, buyerID int64) (*model.Order, error) {
	entry, ok := l.cat.Get(sku)
	if !ok {
		return nil, ErrNotFound
	}
	// Reclaim stale reservations first so an abandoned checkout never
	// blocks a new buyer longer than the TTL.
	if _, err := l.SweepExpired(ctx); err != nil {
		l.log.Warn("pre-reserve sweep failed", zap.Error(err))
	}
	now := l.clk.Now()
	var order *model.Order
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		code, err := l.store.NextAvailableCode(ctx, sku)
		if errors.Is(err, ErrNotFound) {
			return ErrOutOfStock
		}
		if err != nil {
			return err
		}
		if !code.Status.CanTransition(model.CodeReserved) {
			return ErrInvalidState
		}
		if err := l.store.MarkCodeReserved(ctx, code.ID, buyerID, now); err != nil {
			return err
		}
		id, err := newOrderID()
		if err != nil {
			return err
		}
		order = &model.Order{
			ID:         id,
			BuyerID:    buyerID,
			SKU:        sku,
			PriceCents: entry.PriceCents,
			Currency:   entry.Currency,
			Status:     model.OrderPending,
			CodeID:     code.ID,
			PaymentRef: uuid.NewString(),
			CreatedAt:  now,
		}
		return l.store.CreateOrder(ctx, order)
	})
	if err != nil {
		if errors.Is(err, ErrOutOfStock) {
			metrics.OutOfStockTotal.WithLabelValues(sku).Inc()
		}
		return nil, err
	}
	metrics.ReservationsTotal.WithLabelValues(sku).Inc()
	l.log.Info("code reserved",
		zap.String("order_id", order.ID),
		zap.String("sku", sku),
		zap.Int64("buyer_id", buyerID),
		zap.Uint64("code_id", order.CodeID))
	return order, nil
}

// Release cancels a pending order owned by buyerID and returns its code
// to available stock, clearing the reservation holder and timestamp.
// Both transitions happen atomically or not at all.  A missing order
// yields ErrNotFound; a non-pending or foreign order yields
// ErrInvalidState with no mutation.
func (l *Ledger) Release(ctx context.Context, orderID string, buyerID int64) error {
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := l.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.BuyerID != buyerID || o.Status != model.OrderPending {
			return ErrInvalidState
		}
		if err := l.store.MarkCodeAvailable(ctx, o.CodeID); err != nil {
			return err
		}
		return l.store.SetOrderStatus(ctx, o.ID, model.OrderPending, model.OrderCancelled, nil)
	})
	if err != nil {
		return err
	}
	metrics.OrdersCancelledTotal.Inc()
	l.log.Info("order cancelled", zap.String("order_id", orderID), zap.Int64("buyer_id", buyerID))
	return nil
}

// Finalize confirms payment for a pending order owned by buyerID: the
// bound code becomes sold, the order becomes paid and the code's secret
// is returned for one-time delivery.  Confirmation sources may race on
// the same order (mock button, webhook retry, manual poll); the
// transaction serializes them so exactly one caller receives the secret
// and every other one gets ErrInvalidState without mutating state.  A
// code found available rather than reserved is still sold: that covers
// a reservation reclaimed by the sweeper between confirmation and
// commit, not a purchase path that skips reservation.
func (l *Ledger) Finalize(ctx context.Context, orderID string, buyerID int64) (string, error) {
	var (
		secret string
		sku    string
	)
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := l.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.BuyerID != buyerID || o.Status != model.OrderPending {
			return ErrInvalidState
		}
		code, err := l.store.GetCodeForUpdate(ctx, o.CodeID)
		if err != nil {
			return err
		}
		if !code.Status.CanTransition(model.CodeSold) {
			return ErrInvalidState
		}
		if code.Status == model.CodeReserved && code.ReservedBy != nil && *code.ReservedBy != buyerID {
			// Reclaimed and re-reserved by someone else in the TTL window.
			return ErrInvalidState
		}
		now := l.clk.Now()
		if err := l.store.MarkCodeSold(ctx, code.ID, buyerID, now); err != nil {
			return err
		}
		if err := l.store.SetOrderStatus(ctx, o.ID, model.OrderPending, model.OrderPaid, &now); err != nil {
			return err
		}
		secret = code.Secret
		sku = o.SKU
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.OrdersPaidTotal.WithLabelValues(sku).Inc()
	l.log.Info("order paid", zap.String("order_id", orderID), zap.Int64("buyer_id", buyerID), zap.String("sku", sku))
	return secret, nil
}

// SweepExpired returns every reservation older than the TTL to available
// stock and expires the pending order bound to it.  Codes finalized in
// the meantime are not selected, so the sweep can never undo a sale.
// It reports how many reservations were reclaimed.
func (l *Ledger) SweepExpired(ctx context.Context) (int, error) {
	cutoff := l.clk.Now().Add(-l.ttl)
	reclaimed := 0
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		stale, err := l.store.ExpiredReservations(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, code := range stale {
			if err := l.store.MarkCodeAvailable(ctx, code.ID); err != nil {
				if errors.Is(err, ErrInvalidState) {
					continue // finalized under our feet, leave it alone
				}
				return err
			}
			orderID, err := l.store.PendingOrderIDForCode(ctx, code.ID)
			if errors.Is(err, ErrNotFound) {
				reclaimed++
				continue
			}
			if err != nil {
				return err
			}
			if err := l.store.SetOrderStatus(ctx, orderID, model.OrderPending, model.OrderExpired, nil); err != nil {
				return err
			}
			reclaimed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		metrics.ReservationsExpiredTotal.Add(float64(reclaimed))
		l.log.Info("released expired reservations", zap.Int("count", reclaimed))
	}
	return reclaimed, nil
}

// AvailableCount reports how many codes are available for sku after
// reclaiming expired reservations.  A racing reservation may make the
// figure stale the moment it is read, but it never includes a code that
// is reserved or sold.
func (l *Ledger) AvailableCount(ctx context.Context, sku string) (int, error) {
	if _, err := l.SweepExpired(ctx); err != nil {
		return 0, err
	}
	return l.store.CountAvailable(ctx, sku)
}

// AvailableCounts reports availability for every SKU that has stock,
// after reclaiming expired reservations.
func (l *Ledger) AvailableCounts(ctx context.Context) (map[string]int, error) {
	if _, err := l.SweepExpired(ctx); err != nil {
		return nil, err
	}
	return l.store.CountsAvailable(ctx)
}

// InsertCode loads one code into available stock.  The secret must be
// new to the whole ledger; reusing one that was ever sold or reserved
// fails with ErrDuplicateCode.  Unknown SKUs are rejected with
// ErrNotFound so stock cannot be loaded for denominations that are not
// for sale.
func (l *Ledger) InsertCode(ctx context.Context, sku, secret string) error {
	if _, ok := l.cat.Get(sku); !ok {
		return ErrNotFound
	}
	if secret == "" {
		return ErrInvalidState
	}
	if _, err := l.store.InsertCode(ctx, sku, secret); err != nil {
		return err
	}
	metrics.CodesInsertedTotal.WithLabelValues(sku).Inc()
	return nil
}

// ListAvailable returns the available codes for sku, or for all SKUs
// when sku is empty.  Read-only; used for the admin export.
func (l *Ledger) ListAvailable(ctx context.Context, sku string) ([]model.Code, error) {
	return l.store.ListAvailable(ctx, sku)
}

// GetOrder returns the order only when it belongs to buyerID.  Both a
// missing order and a foreign one come back as ErrNotFound so callers
// cannot probe which order ids exist.
func (l *Ledger) GetOrder(ctx context.Context, orderID string, buyerID int64) (*model.Order, error) {
	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ResolveOrderByPaymentRef loads the order carrying the provider
// correlation id.  It is the durable fallback for webhook confirmations:
// the order row alone carries enough context (buyer, SKU, bound code) to
// finalize after a process restart wiped any in-memory correlation.
func (l *Ledger) ResolveOrderByPaymentRef(ctx context.Context, ref string) (*model.Order, error) {
	id, err := l.store.OrderIDByPaymentRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.store.GetOrder(ctx, id)
}

// ResolveOrderID returns just the order id for a payment reference.
func (l *Ledger) ResolveOrderID(ctx context.Context, ref string) (string, error) {
	return l.store.OrderIDByPaymentRef(ctx, ref)
}

// ListRecentOrders returns up to limit orders, newest first.
func (l *Ledger) ListRecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return l.store.ListRecentOrders(ctx, limit)
}

// CountDistinctBuyers counts how many distinct buyers ever placed an
// order.
func (l *Ledger) CountDistinctBuyers(ctx context.Context) (int64, error) {
	return l.store.CountDistinctBuyers(ctx)
}

// PaidTotals sums the prices of paid orders per currency, in cents.
func (l *Ledger) PaidTotals(ctx context.Context) (map[string]int64, error) {
	return l.store.SumPaidTotals(ctx)
}

// TTL exposes the reservation time-to-live for display to buyers.
func (l *Ledger) TTL() time.Duration { return l.ttl }
