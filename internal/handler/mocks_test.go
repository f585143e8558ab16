package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avekor/giftcode-vending/internal/catalog"
	"github.com/avekor/giftcode-vending/internal/ledger"
	"github.com/avekor/giftcode-vending/internal/model"
)

// fakeVendor is an in-memory Vendor for handler tests.  It reproduces
// the ledger's observable behavior (ownership checks, terminal states,
// generic errors) without a database.
type fakeVendor struct {
	mu      sync.Mutex
	cat     catalog.Catalog
	stock   map[string][]string // sku -> available secrets, FIFO
	orders  map[string]*model.Order
	secrets map[string]string // order id -> bound secret
	nextID  int
	failAll error // when set, every call fails with this error
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		cat:     catalog.Default(),
		stock:   make(map[string][]string),
		orders:  make(map[string]*model.Order),
		secrets: make(map[string]string),
	}
}

func (f *fakeVendor) addStock(sku string, secrets ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[sku] = append(f.stock[sku], secrets...)
}

func (f *fakeVendor) Reserve(_ context.Context, sku string, buyerID int64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	entry, ok := f.cat.Get(sku)
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if len(f.stock[sku]) == 0 {
		return nil, ledger.ErrOutOfStock
	}
	secret := f.stock[sku][0]
	f.stock[sku] = f.stock[sku][1:]
	f.nextID++
	o := &model.Order{
		ID:         fmt.Sprintf("%016x", f.nextID),
		BuyerID:    buyerID,
		SKU:        sku,
		PriceCents: entry.PriceCents,
		Currency:   entry.Currency,
		Status:     model.OrderPending,
		CodeID:     uint64(f.nextID),
		PaymentRef: fmt.Sprintf("ref-%04d", f.nextID),
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.orders[o.ID] = o
	f.secrets[o.ID] = secret
	return cloneOrder(o), nil
}

func (f *fakeVendor) Release(_ context.Context, orderID string, buyerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return ledger.ErrNotFound
	}
	if o.BuyerID != buyerID || o.Status != model.OrderPending {
		return ledger.ErrInvalidState
	}
	o.Status = model.OrderCancelled
	f.stock[o.SKU] = append(f.stock[o.SKU], f.secrets[orderID])
	return nil
}

func (f *fakeVendor) Finalize(_ context.Context, orderID string, buyerID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return "", ledger.ErrNotFound
	}
	if o.BuyerID != buyerID || o.Status != model.OrderPending {
		return "", ledger.ErrInvalidState
	}
	o.Status = model.OrderPaid
	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	o.PaidAt = &at
	return f.secrets[orderID], nil
}

func (f *fakeVendor) GetOrder(_ context.Context, orderID string, buyerID int64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.BuyerID != buyerID {
		return nil, ledger.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (f *fakeVendor) AvailableCounts(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	out := make(map[string]int)
	for sku, secrets := range f.stock {
		if len(secrets) > 0 {
			out[sku] = len(secrets)
		}
	}
	return out, nil
}

func (f *fakeVendor) InsertCode(_ context.Context, sku, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cat.Get(sku); !ok {
		return ledger.ErrNotFound
	}
	if secret == "" {
		return ledger.ErrInvalidState
	}
	for _, existing := range f.stock[sku] {
		if existing == secret {
			return ledger.ErrDuplicateCode
		}
	}
	f.stock[sku] = append(f.stock[sku], secret)
	return nil
}

func (f *fakeVendor) ListAvailable(_ context.Context, sku string) ([]model.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	skus := []string{sku}
	if sku == "" {
		skus = skus[:0]
		for s := range f.stock {
			skus = append(skus, s)
		}
		sort.Strings(skus)
	}
	var out []model.Code
	var id uint64
	for _, s := range skus {
		for _, secret := range f.stock[s] {
			id++
			out = append(out, model.Code{ID: id, SKU: s, Secret: secret, Status: model.CodeAvailable})
		}
	}
	return out, nil
}

func (f *fakeVendor) ResolveOrderByPaymentRef(_ context.Context, ref string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.PaymentRef == ref {
			return cloneOrder(o), nil
		}
	}
	return nil, ledger.ErrNotFound
}

// ResolveOrderID makes fakeVendor usable as the correlator's durable
// fallback.
func (f *fakeVendor) ResolveOrderID(ctx context.Context, ref string) (string, error) {
	o, err := f.ResolveOrderByPaymentRef(ctx, ref)
	if err != nil {
		return "", err
	}
	return o.ID, nil
}

func (f *fakeVendor) ListRecentOrders(_ context.Context, limit int) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeVendor) CountDistinctBuyers(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[int64]struct{})
	for _, o := range f.orders {
		seen[o.BuyerID] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (f *fakeVendor) PaidTotals(context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64)
	for _, o := range f.orders {
		if o.Status == model.OrderPaid {
			out[o.Currency] += o.PriceCents
		}
	}
	return out, nil
}

func (f *fakeVendor) TTL() time.Duration { return 10 * time.Minute }

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	if o.PaidAt != nil {
		at := *o.PaidAt
		cp.PaidAt = &at
	}
	return &cp
}
