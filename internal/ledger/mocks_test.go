package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avekor/giftcode-vending/internal/model"
)

// fakeStore is an in-memory Store used by the ledger tests.  A single
// mutex held for the whole of WithTx stands in for row locks: it is
// coarser than the real MySQL store but gives the same guarantee the
// ledger relies on, namely that two transactions touching the same rows
// never interleave.  Rollback is snapshot-restore.
type fakeStore struct {
	mu     sync.Mutex
	nextID uint64
	codes  map[uint64]*model.Code
	orders map[string]*model.Order
}

type fakeTxKey struct{}

func newFakeStore() *fakeStore {
	return &fakeStore{
		codes:  make(map[uint64]*model.Code),
		orders: make(map[string]*model.Order),
	}
}

// seed inserts a code directly, bypassing the ledger.
func (s *fakeStore) seed(sku, secret string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.codes[s.nextID] = &model.Code{ID: s.nextID, SKU: sku, Secret: secret, Status: model.CodeAvailable}
	return s.nextID
}

// setCodeStatus mutates a code directly, for staging edge-case states.
func (s *fakeStore) setCodeStatus(id uint64, status model.CodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.codes[id]
	c.Status = status
	if status == model.CodeAvailable {
		c.ReservedBy, c.ReservedAt = nil, nil
	}
}

func (s *fakeStore) code(id uint64) model.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.codes[id]
}

func (s *fakeStore) order(id string) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	codes, orders := s.snapshot()
	err := fn(context.WithValue(ctx, fakeTxKey{}, struct{}{}))
	if err != nil {
		s.codes, s.orders = codes, orders
	}
	return err
}

func (s *fakeStore) snapshot() (map[uint64]*model.Code, map[string]*model.Order) {
	codes := make(map[uint64]*model.Code, len(s.codes))
	for id, c := range s.codes {
		cp := *c
		codes[id] = &cp
	}
	orders := make(map[string]*model.Order, len(s.orders))
	for id, o := range s.orders {
		cp := *o
		orders[id] = &cp
	}
	return codes, orders
}

// lockUnlessInTx guards the direct (non-transactional) read paths.
func (s *fakeStore) lockUnlessInTx(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *fakeStore) InsertCode(ctx context.Context, sku, secret string) (uint64, error) {
	defer s.lockUnlessInTx(ctx)()
	for _, c := range s.codes {
		if c.Secret == secret {
			return 0, ErrDuplicateCode
		}
	}
	s.nextID++
	s.codes[s.nextID] = &model.Code{ID: s.nextID, SKU: sku, Secret: secret, Status: model.CodeAvailable}
	return s.nextID, nil
}

func (s *fakeStore) NextAvailableCode(ctx context.Context, sku string) (*model.Code, error) {
	defer s.lockUnlessInTx(ctx)()
	var best *model.Code
	for _, c := range s.codes {
		if c.SKU != sku || c.Status != model.CodeAvailable {
			continue
		}
		if best == nil || c.ID < best.ID {
			best = c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *fakeStore) GetCodeForUpdate(ctx context.Context, id uint64) (*model.Code, error) {
	defer s.lockUnlessInTx(ctx)()
	c, ok := s.codes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) MarkCodeReserved(ctx context.Context, id uint64, buyerID int64, at time.Time) error {
	defer s.lockUnlessInTx(ctx)()
	c, ok := s.codes[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != model.CodeAvailable {
		return ErrInvalidState
	}
	c.Status = model.CodeReserved
	c.ReservedBy, c.ReservedAt = &buyerID, &at
	return nil
}

func (s *fakeStore) MarkCodeAvailable(ctx context.Context, id uint64) error {
	defer s.lockUnlessInTx(ctx)()
	c, ok := s.codes[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != model.CodeReserved {
		return ErrInvalidState
	}
	c.Status = model.CodeAvailable
	c.ReservedBy, c.ReservedAt = nil, nil
	return nil
}

func (s *fakeStore) MarkCodeSold(ctx context.Context, id uint64, buyerID int64, at time.Time) error {
	defer s.lockUnlessInTx(ctx)()
	c, ok := s.codes[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status == model.CodeSold {
		return ErrInvalidState
	}
	c.Status = model.CodeSold
	c.SoldTo, c.SoldAt = &buyerID, &at
	return nil
}

func (s *fakeStore) CountAvailable(ctx context.Context, sku string) (int, error) {
	defer s.lockUnlessInTx(ctx)()
	n := 0
	for _, c := range s.codes {
		if c.SKU == sku && c.Status == model.CodeAvailable {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountsAvailable(ctx context.Context) (map[string]int, error) {
	defer s.lockUnlessInTx(ctx)()
	out := make(map[string]int)
	for _, c := range s.codes {
		if c.Status == model.CodeAvailable {
			out[c.SKU]++
		}
	}
	return out, nil
}

func (s *fakeStore) ListAvailable(ctx context.Context, sku string) ([]model.Code, error) {
	defer s.lockUnlessInTx(ctx)()
	var out []model.Code
	for _, c := range s.codes {
		if c.Status != model.CodeAvailable {
			continue
		}
		if sku != "" && c.SKU != sku {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) ExpiredReservations(ctx context.Context, cutoff time.Time) ([]model.Code, error) {
	defer s.lockUnlessInTx(ctx)()
	var out []model.Code
	for _, c := range s.codes {
		if c.Status == model.CodeReserved && c.ReservedAt != nil && c.ReservedAt.Before(cutoff) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, o *model.Order) error {
	defer s.lockUnlessInTx(ctx)()
	if _, ok := s.orders[o.ID]; ok {
		return ErrDuplicateCode
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *fakeStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	defer s.lockUnlessInTx(ctx)()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetOrderForUpdate(ctx context.Context, id string) (*model.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *fakeStore) OrderIDByPaymentRef(ctx context.Context, ref string) (string, error) {
	defer s.lockUnlessInTx(ctx)()
	for id, o := range s.orders {
		if o.PaymentRef == ref {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (s *fakeStore) PendingOrderIDForCode(ctx context.Context, codeID uint64) (string, error) {
	defer s.lockUnlessInTx(ctx)()
	for id, o := range s.orders {
		if o.CodeID == codeID && o.Status == model.OrderPending {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (s *fakeStore) SetOrderStatus(ctx context.Context, id string, from, to model.OrderStatus, paidAt *time.Time) error {
	defer s.lockUnlessInTx(ctx)()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrInvalidState
	}
	o.Status = to
	if paidAt != nil {
		at := *paidAt
		o.PaidAt = &at
	}
	return nil
}

func (s *fakeStore) ListRecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	defer s.lockUnlessInTx(ctx)()
	var out []model.Order
	for _, o := range s.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CountDistinctBuyers(ctx context.Context) (int64, error) {
	defer s.lockUnlessInTx(ctx)()
	seen := make(map[int64]struct{})
	for _, o := range s.orders {
		seen[o.BuyerID] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (s *fakeStore) SumPaidTotals(ctx context.Context) (map[string]int64, error) {
	defer s.lockUnlessInTx(ctx)()
	out := make(map[string]int64)
	for _, o := range s.orders {
		if o.Status == model.OrderPaid {
			out[o.Currency] += o.PriceCents
		}
	}
	return out, nil
}
