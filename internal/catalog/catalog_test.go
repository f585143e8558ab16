package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	e, ok := c.Get("us_5")
	require.True(t, ok)
	assert.Equal(t, int64(500), e.PriceCents)
	assert.Equal(t, "USD", e.Currency)

	_, ok = c.Get("us_9999")
	assert.False(t, ok)

	// Display order is ascending by price.
	assert.Equal(t, []string{"us_2", "us_3", "us_5", "us_10", "us_20"}, c.SKUs())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	body := `[
		{"sku":"de_10","title":"Apple Gift Card (DE) 10 EUR","price_cents":1000,"currency":"EUR"},
		{"sku":"de_25","title":"Apple Gift Card (DE) 25 EUR","price_cents":2500,"currency":"EUR"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, c, 2)
	e, ok := c.Get("de_25")
	require.True(t, ok)
	assert.Equal(t, int64(2500), e.PriceCents)
}

func TestLoadFileRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"missing_sku":   `[{"title":"x","price_cents":100,"currency":"EUR"}]`,
		"zero_price":    `[{"sku":"de_10","title":"x","price_cents":0,"currency":"EUR"}]`,
		"no_currency":   `[{"sku":"de_10","title":"x","price_cents":100}]`,
		"empty_catalog": `[]`,
		"not_json":      `sku,price`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
