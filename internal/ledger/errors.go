// Package ledger implements the inventory and order ledger: the
// transactional state machine that reserves, releases and sells gift
// codes.  These sentinel values let transports distinguish the failure
// classes without inspecting storage errors.  Anything that is not one
// of these is a storage-layer failure and may be retried by the caller;
// it must never be treated as ErrInvalidState.
package ledger

import "errors"

// ErrOutOfStock is returned by Reserve when no available code exists for
// the requested SKU.  User-recoverable; shown as "not in stock".
var ErrOutOfStock = errors.New("out of stock")

// ErrNotFound is returned when an order or SKU does not exist.
// Transports should surface it the same way as ErrInvalidState so order
// ids cannot be probed.
var ErrNotFound = errors.New("not found")

// ErrInvalidState is returned when an order or code is not in the status
// the operation requires, including double finalize, double cancel and
// operations on an order owned by another buyer.  No mutation occurs.
var ErrInvalidState = errors.New("invalid state")

// ErrDuplicateCode is returned by InsertCode when the secret already
// exists anywhere in the ledger, sold and reserved codes included.
// Codes are never reused.
var ErrDuplicateCode = errors.New("duplicate code")
