package model

import "time"

// OrderStatus enumerates the lifecycle states of an order.  An order is
// created pending as a side effect of a successful reservation and
// terminates in exactly one of paid, cancelled or expired.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderCancelled, OrderExpired:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transition.
func (s OrderStatus) Terminal() bool { return s != OrderPending }

// CanTransition reports whether an order may move from s to next.  Only
// pending orders move at all: to paid on finalize, to cancelled on an
// explicit release, or to expired when the sweeper reclaims the
// reservation.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s != OrderPending {
		return false
	}
	return next == OrderPaid || next == OrderCancelled || next == OrderExpired
}

// Order is a buyer's purchase attempt bound to exactly one code.  The ID
// is random text generated independently of the database so order
// numbers cannot be enumerated.  CodeID is set at creation and never
// changes.  Rows are never deleted.
//
// Fields:
//  ID         – opaque, unguessable identifier (16 hex chars).
//  BuyerID    – chat user id of the buyer.
//  SKU        – catalog identifier purchased.
//  PriceCents – price snapshot taken at reservation time.
//  Currency   – ISO currency code of the snapshot.
//  Status     – current lifecycle state.
//  CodeID     – the reserved code this order is bound to.
//  PaymentRef – correlation id handed to the payment provider.
//  CreatedAt  – when the reservation was taken.
//  PaidAt     – when payment was confirmed (nil until paid).
type Order struct {
	ID         string      // orders.id
	BuyerID    int64       // orders.buyer_id
	SKU        string      // orders.sku
	PriceCents int64       // orders.price_cents
	Currency   string      // orders.currency
	Status     OrderStatus // orders.status
	CodeID     uint64      // orders.code_id
	PaymentRef string      // orders.payment_ref
	CreatedAt  time.Time   // orders.created_at
	PaidAt     *time.Time  // orders.paid_at (nullable)
}
