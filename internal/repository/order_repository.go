package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avekor/giftcode-vending/internal/ledger"
	"github.com/avekor/giftcode-vending/internal/model"
)

const orderColumns = `id, buyer_id, sku, price_cents, currency, status, code_id, payment_ref, created_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var (
		o      model.Order
		status string
		paidAt sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.BuyerID, &o.SKU, &o.PriceCents, &o.Currency,
		&status, &o.CodeID, &o.PaymentRef, &o.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		o.PaidAt = &t
	}
	return &o, nil
}

// CreateOrder inserts a new order row.  Orders are only ever created as
// the side effect of a successful reservation, inside the same
// transaction.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	const q = `INSERT INTO orders (id, buyer_id, sku, price_cents, currency, status, code_id, payment_ref, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q(ctx).ExecContext(ctx, q,
		o.ID, o.BuyerID, o.SKU, o.PriceCents, o.Currency, string(o.Status), o.CodeID, o.PaymentRef, o.CreatedAt.UTC())
	return err
}

// GetOrder returns the order row without locking.
func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	o, err := scanOrder(s.q(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return o, err
}

// GetOrderForUpdate returns the order row locked for update.  Racing
// finalize and cancel calls on the same order serialize here.
func (s *Store) GetOrderForUpdate(ctx context.Context, id string) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`
	o, err := scanOrder(s.q(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return o, err
}

// OrderIDByPaymentRef resolves a provider correlation id to an order id.
func (s *Store) OrderIDByPaymentRef(ctx context.Context, ref string) (string, error) {
	const q = `SELECT id FROM orders WHERE payment_ref = ?`
	var id string
	err := s.q(ctx).QueryRowContext(ctx, q, ref).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrNotFound
	}
	return id, err
}

// PendingOrderIDForCode returns the pending order bound to codeID.
// The reservation transaction guarantees at most one such order.
func (s *Store) PendingOrderIDForCode(ctx context.Context, codeID uint64) (string, error) {
	const q = `SELECT id FROM orders WHERE code_id = ? AND status = 'pending' LIMIT 1`
	var id string
	err := s.q(ctx).QueryRowContext(ctx, q, codeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrNotFound
	}
	return id, err
}

// SetOrderStatus transitions from→to, recording paid_at when supplied.
// The guard on the current status makes terminal statuses sticky.
func (s *Store) SetOrderStatus(ctx context.Context, id string, from, to model.OrderStatus, paidAt *time.Time) error {
	if paidAt != nil {
		const q = `UPDATE orders SET status = ?, paid_at = ? WHERE id = ? AND status = ?`
		at := paidAt.UTC()
		return guarded(s.q(ctx).ExecContext(ctx, q, string(to), at, id, string(from)))
	}
	const q = `UPDATE orders SET status = ? WHERE id = ? AND status = ?`
	return guarded(s.q(ctx).ExecContext(ctx, q, string(to), id, string(from)))
}

// ListRecentOrders returns up to limit orders, newest first.
func (s *Store) ListRecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.q(ctx).QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// CountDistinctBuyers counts buyers across all orders ever placed.
func (s *Store) CountDistinctBuyers(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(DISTINCT buyer_id) FROM orders`
	var n int64
	if err := s.q(ctx).QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SumPaidTotals sums paid order prices per currency, in cents.
func (s *Store) SumPaidTotals(ctx context.Context) (map[string]int64, error) {
	const q = `SELECT currency, COALESCE(SUM(price_cents), 0) FROM orders WHERE status = 'paid' GROUP BY currency`
	rows, err := s.q(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[string]int64)
	for rows.Next() {
		var (
			currency string
			sum      int64
		)
		if err := rows.Scan(&currency, &sum); err != nil {
			return nil, err
		}
		totals[currency] = sum
	}
	return totals, rows.Err()
}
