package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avekor/giftcode-vending/internal/ledger"
	"github.com/avekor/giftcode-vending/internal/model"
)

const codeColumns = `id, sku, secret, status, reserved_by, reserved_at, sold_to, sold_at`

// scanCode scans one gift_codes row.
func scanCode(row interface{ Scan(...any) error }) (*model.Code, error) {
	var (
		c          model.Code
		status     string
		reservedBy sql.NullInt64
		reservedAt sql.NullTime
		soldTo     sql.NullInt64
		soldAt     sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.SKU, &c.Secret, &status, &reservedBy, &reservedAt, &soldTo, &soldAt); err != nil {
		return nil, err
	}
	c.Status = model.CodeStatus(status)
	if reservedBy.Valid {
		v := reservedBy.Int64
		c.ReservedBy = &v
	}
	if reservedAt.Valid {
		t := reservedAt.Time.UTC()
		c.ReservedAt = &t
	}
	if soldTo.Valid {
		v := soldTo.Int64
		c.SoldTo = &v
	}
	if soldAt.Valid {
		t := soldAt.Time.UTC()
		c.SoldAt = &t
	}
	return &c, nil
}

// InsertCode adds one code in available status.  The unique index on
// secret covers the whole ledger, so a secret that was ever reserved or
// sold can never be loaded again.
func (s *Store) InsertCode(ctx context.Context, sku, secret string) (uint64, error) {
	const q = `INSERT INTO gift_codes (sku, secret, status) VALUES (?, ?, 'available')`
	res, err := s.q(ctx).ExecContext(ctx, q, sku, secret)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ledger.ErrDuplicateCode
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// NextAvailableCode returns the oldest available code for sku locked
// for update, so a racing reservation blocks until this transaction
// settles instead of picking the same row.
func (s *Store) NextAvailableCode(ctx context.Context, sku string) (*model.Code, error) {
	const q = `SELECT ` + codeColumns + ` FROM gift_codes
	           WHERE sku = ? AND status = 'available'
	           ORDER BY id LIMIT 1 FOR UPDATE`
	c, err := scanCode(s.q(ctx).QueryRowContext(ctx, q, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return c, err
}

// GetCodeForUpdate returns the code row locked for update.
func (s *Store) GetCodeForUpdate(ctx context.Context, id uint64) (*model.Code, error) {
	const q = `SELECT ` + codeColumns + ` FROM gift_codes WHERE id = ? FOR UPDATE`
	c, err := scanCode(s.q(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return c, err
}

// MarkCodeReserved transitions available→reserved.
func (s *Store) MarkCodeReserved(ctx context.Context, id uint64, buyerID int64, at time.Time) error {
	const q = `UPDATE gift_codes SET status = 'reserved', reserved_by = ?, reserved_at = ?
	           WHERE id = ? AND status = 'available'`
	return guarded(s.q(ctx).ExecContext(ctx, q, buyerID, at.UTC(), id))
}

// MarkCodeAvailable transitions reserved→available and clears the
// reservation metadata.
func (s *Store) MarkCodeAvailable(ctx context.Context, id uint64) error {
	const q = `UPDATE gift_codes SET status = 'available', reserved_by = NULL, reserved_at = NULL
	           WHERE id = ? AND status = 'reserved'`
	return guarded(s.q(ctx).ExecContext(ctx, q, id))
}

// MarkCodeSold transitions reserved-or-available→sold.  Sold rows never
// match the guard, which is what makes sold terminal at the storage
// level as well.
func (s *Store) MarkCodeSold(ctx context.Context, id uint64, buyerID int64, at time.Time) error {
	const q = `UPDATE gift_codes SET status = 'sold', sold_to = ?, sold_at = ?
	           WHERE id = ? AND status IN ('reserved', 'available')`
	return guarded(s.q(ctx).ExecContext(ctx, q, buyerID, at.UTC(), id))
}

// CountAvailable counts available codes for one SKU.
func (s *Store) CountAvailable(ctx context.Context, sku string) (int, error) {
	const q = `SELECT COUNT(*) FROM gift_codes WHERE sku = ? AND status = 'available'`
	var n int
	if err := s.q(ctx).QueryRowContext(ctx, q, sku).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountsAvailable counts available codes grouped by SKU.
func (s *Store) CountsAvailable(ctx context.Context) (map[string]int, error) {
	const q = `SELECT sku, COUNT(*) FROM gift_codes WHERE status = 'available' GROUP BY sku`
	rows, err := s.q(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			sku string
			n   int
		)
		if err := rows.Scan(&sku, &n); err != nil {
			return nil, err
		}
		counts[sku] = n
	}
	return counts, rows.Err()
}

// ListAvailable returns available codes for sku, or for every SKU when
// sku is empty, ordered by SKU then insertion order.
func (s *Store) ListAvailable(ctx context.Context, sku string) ([]model.Code, error) {
	q := `SELECT ` + codeColumns + ` FROM gift_codes WHERE status = 'available'`
	args := []any{}
	if sku != "" {
		q += ` AND sku = ?`
		args = append(args, sku)
	}
	q += ` ORDER BY sku, id`
	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []model.Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

// ExpiredReservations returns reserved codes whose reservation is older
// than cutoff, locked for update so the sweep and a concurrent finalize
// serialize on the same rows.
func (s *Store) ExpiredReservations(ctx context.Context, cutoff time.Time) ([]model.Code, error) {
	const q = `SELECT ` + codeColumns + ` FROM gift_codes
	           WHERE status = 'reserved' AND reserved_at < ?
	           ORDER BY id FOR UPDATE`
	rows, err := s.q(ctx).QueryContext(ctx, q, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []model.Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}
