// Package metrics registers the Prometheus collectors for the vending
// core.  Counters are registered once at init through promauto and
// shared by whoever drives the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsTotal counts successful reservations per SKU.
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftvend",
		Name:      "reservations_total",
		Help:      "Successful code reservations.",
	}, []string{"sku"})

	// OutOfStockTotal counts reservation attempts rejected for lack of
	// stock, per SKU.
	OutOfStockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftvend",
		Name:      "out_of_stock_total",
		Help:      "Reservation attempts rejected with out of stock.",
	}, []string{"sku"})

	// OrdersPaidTotal counts finalized orders per SKU.
	OrdersPaidTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftvend",
		Name:      "orders_paid_total",
		Help:      "Orders confirmed paid with the code delivered.",
	}, []string{"sku"})

	// OrdersCancelledTotal counts buyer-cancelled orders.
	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "giftvend",
		Name:      "orders_cancelled_total",
		Help:      "Orders cancelled by their buyer.",
	})

	// ReservationsExpiredTotal counts reservations reclaimed by the
	// expiry sweeper.
	ReservationsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "giftvend",
		Name:      "reservations_expired_total",
		Help:      "Reservations returned to stock after the TTL elapsed.",
	})

	// CodesInsertedTotal counts codes loaded into stock per SKU.
	CodesInsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftvend",
		Name:      "codes_inserted_total",
		Help:      "Codes loaded into available stock.",
	}, []string{"sku"})
)
