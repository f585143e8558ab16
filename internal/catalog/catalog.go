// Package catalog provides the read-only SKU lookup the vending core
// prices orders against.  The core never owns pricing: it snapshots the
// price at reservation time and a later catalog change must not affect
// already-reserved orders.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Entry describes one sellable denomination.
type Entry struct {
	SKU        string `json:"sku"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
}

// Catalog maps SKU to its entry.  It is built once at startup and read
// concurrently without locking; it must not be mutated afterwards.
type Catalog map[string]Entry

// Default returns the built-in catalog: US Apple Gift Card denominations
// priced at nominal value.
func Default() Catalog {
	entries := []Entry{
		{SKU: "us_2", Title: "Apple Gift Card (US) $2", PriceCents: 200, Currency: "USD"},
		{SKU: "us_3", Title: "Apple Gift Card (US) $3", PriceCents: 300, Currency: "USD"},
		{SKU: "us_5", Title: "Apple Gift Card (US) $5", PriceCents: 500, Currency: "USD"},
		{SKU: "us_10", Title: "Apple Gift Card (US) $10", PriceCents: 1000, Currency: "USD"},
		{SKU: "us_20", Title: "Apple Gift Card (US) $20", PriceCents: 2000, Currency: "USD"},
	}
	c := make(Catalog, len(entries))
	for _, e := range entries {
		c[e.SKU] = e
	}
	return c
}

// LoadFile reads a JSON array of entries from path and returns it as a
// Catalog.  It is used when operators override the built-in catalog via
// CATALOG_PATH.
func LoadFile(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := make(Catalog, len(entries))
	for _, e := range entries {
		if e.SKU == "" || e.PriceCents <= 0 || e.Currency == "" {
			return nil, fmt.Errorf("invalid catalog entry %q", e.SKU)
		}
		c[e.SKU] = e
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}
	return c, nil
}

// Get returns the entry for sku and whether it exists.
func (c Catalog) Get(sku string) (Entry, bool) {
	e, ok := c[sku]
	return e, ok
}

// SKUs returns all catalog SKUs in a stable order for display.
func (c Catalog) SKUs() []string {
	out := make([]string, 0, len(c))
	for sku := range c {
		out = append(out, sku)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := c[out[i]], c[out[j]]
		if a.PriceCents != b.PriceCents {
			return a.PriceCents < b.PriceCents
		}
		return out[i] < out[j]
	})
	return out
}
