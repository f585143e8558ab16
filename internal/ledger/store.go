package ledger

import (
	"context"
	"time"

	"github.com/avekor/giftcode-vending/internal/model"
)

// Store is the persistence contract the ledger drives.  Implementations
// must make WithTx execute fn inside a single transaction whose row
// reads (the ForUpdate variants) lock the returned rows until commit,
// and must make every Mark/Set method a conditional update that only
// succeeds when the row is still in the expected current status,
// returning ErrInvalidState otherwise.  That combination gives each
// ledger operation serializable isolation scoped to the affected rows.
//
// Methods return ErrNotFound when the target row does not exist and
// ErrDuplicateCode on a secret uniqueness violation.  All other errors
// are storage failures and are passed through unchanged.
type Store interface {
	// WithTx runs fn inside a transaction.  Nested calls join the
	// enclosing transaction.  fn returning an error rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// InsertCode adds one code in available status and returns its id.
	InsertCode(ctx context.Context, sku, secret string) (uint64, error)
	// NextAvailableCode returns the oldest available code for sku,
	// locked for update.  ErrNotFound when the SKU is drained.
	NextAvailableCode(ctx context.Context, sku string) (*model.Code, error)
	// GetCodeForUpdate returns the code row locked for update.
	GetCodeForUpdate(ctx context.Context, id uint64) (*model.Code, error)
	// MarkCodeReserved transitions available→reserved for buyerID.
	MarkCodeReserved(ctx context.Context, id uint64, buyerID int64, at time.Time) error
	// MarkCodeAvailable transitions reserved→available, clearing the
	// reservation holder and timestamp.
	MarkCodeAvailable(ctx context.Context, id uint64) error
	// MarkCodeSold transitions reserved-or-available→sold for buyerID.
	MarkCodeSold(ctx context.Context, id uint64, buyerID int64, at time.Time) error
	// CountAvailable counts available codes for one SKU.
	CountAvailable(ctx context.Context, sku string) (int, error)
	// CountsAvailable counts available codes grouped by SKU.
	CountsAvailable(ctx context.Context) (map[string]int, error)
	// ListAvailable returns available codes for sku, or for every SKU
	// when sku is empty, ordered by SKU then id.
	ListAvailable(ctx context.Context, sku string) ([]model.Code, error)
	// ExpiredReservations returns reserved codes whose reservation
	// timestamp is strictly before cutoff, locked for update.
	ExpiredReservations(ctx context.Context, cutoff time.Time) ([]model.Code, error)

	// CreateOrder inserts a new pending order.
	CreateOrder(ctx context.Context, o *model.Order) error
	// GetOrder returns the order row without locking.
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	// GetOrderForUpdate returns the order row locked for update.
	GetOrderForUpdate(ctx context.Context, id string) (*model.Order, error)
	// OrderIDByPaymentRef resolves the durable payment correlation.
	OrderIDByPaymentRef(ctx context.Context, ref string) (string, error)
	// PendingOrderIDForCode returns the id of the pending order bound
	// to codeID, or ErrNotFound when none exists.
	PendingOrderIDForCode(ctx context.Context, codeID uint64) (string, error)
	// SetOrderStatus transitions from→to; paidAt is recorded when to is
	// paid.
	SetOrderStatus(ctx context.Context, id string, from, to model.OrderStatus, paidAt *time.Time) error
	// ListRecentOrders returns up to limit orders, newest first.
	ListRecentOrders(ctx context.Context, limit int) ([]model.Order, error)
	// CountDistinctBuyers counts buyers across all orders.
	CountDistinctBuyers(ctx context.Context) (int64, error)
	// SumPaidTotals sums paid order prices per currency, in cents.
	SumPaidTotals(ctx context.Context) (map[string]int64, error)
}
