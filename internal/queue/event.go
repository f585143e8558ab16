// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderPaidEvent is published after a finalize commits.  It carries
// enough information for downstream consumers (sales journal,
// notifications, analytics) without querying the primary database.  The
// code secret is deliberately absent: it is delivered to the buyer once
// and never travels through the broker.
type OrderPaidEvent struct {
	OrderID    string `json:"order_id"`
	BuyerID    int64  `json:"buyer_id"`
	SKU        string `json:"sku"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	PaidAt     string `json:"paid_at"`
}
