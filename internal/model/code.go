package model

import "time"

// CodeStatus enumerates the lifecycle states of a gift code.  A code
// enters the ledger as available, is parked in reserved while a buyer
// completes payment, and ends in sold.  Sold is terminal: no further
// transition is ever permitted.
type CodeStatus string

const (
	CodeAvailable CodeStatus = "available"
	CodeReserved  CodeStatus = "reserved"
	CodeSold      CodeStatus = "sold"
)

// Valid reports whether s is one of the known code statuses.
func (s CodeStatus) Valid() bool {
	switch s {
	case CodeAvailable, CodeReserved, CodeSold:
		return true
	}
	return false
}

// CanTransition reports whether a code may move from s to next.  The
// allowed moves are available→reserved (reserve), reserved→available
// (release or expiry) and reserved/available→sold (finalize; the
// available→sold edge covers a reservation reclaimed between the buyer's
// confirmation and the commit).  Everything else, in particular any move
// out of sold, is rejected.
func (s CodeStatus) CanTransition(next CodeStatus) bool {
	switch s {
	case CodeAvailable:
		return next == CodeReserved || next == CodeSold
	case CodeReserved:
		return next == CodeAvailable || next == CodeSold
	}
	return false
}

// Code is one redeemable secret string, the unit of sellable inventory.
// Rows are never deleted; together with orders they form the audit trail.
//
// Fields:
//  ID         – primary key identifier, also the FIFO drain order.
//  SKU        – catalog identifier of the denomination.
//  Secret     – the redeemable string, unique across the whole ledger.
//  Status     – current lifecycle state.
//  ReservedBy – buyer currently holding the reservation (nil when none).
//  ReservedAt – when the reservation was taken (nil when none).
//  SoldTo     – buyer the code was sold to (nil until sold).
//  SoldAt     – when the sale was finalized (nil until sold).
type Code struct {
	ID         uint64     // gift_codes.id
	SKU        string     // gift_codes.sku
	Secret     string     // gift_codes.secret
	Status     CodeStatus // gift_codes.status
	ReservedBy *int64     // gift_codes.reserved_by (nullable)
	ReservedAt *time.Time // gift_codes.reserved_at (nullable)
	SoldTo     *int64     // gift_codes.sold_to (nullable)
	SoldAt     *time.Time // gift_codes.sold_at (nullable)
}
