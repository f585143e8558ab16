package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avekor/giftcode-vending/internal/catalog"
	"github.com/avekor/giftcode-vending/internal/payment"
	"github.com/avekor/giftcode-vending/internal/queue"
)

func newShopFixture(vend *fakeVendor) (*ShopHandler, chan queue.OrderPaidEvent) {
	events := make(chan queue.OrderPaidEvent, 8)
	h := NewShopHandler(vend, catalog.Default(), payment.NewCorrelator(nil, vend, time.Hour), "", zap.NewNop())
	h.publishPaid = func(_ context.Context, ev queue.OrderPaidEvent) { events <- ev }
	return h, events
}

// doJSON drives one handler call and decodes the JSON response body.
func doJSON(t *testing.T, h echo.HandlerFunc, method, target, body string, setup func(echo.Context)) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	require.NoError(t, h(c))
	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

// newRawRequest builds a bodyless request and recorder for handlers
// that write non-JSON responses.
func newRawRequest(method, target string) (*http.Request, *httptest.ResponseRecorder) {
	return httptest.NewRequest(method, target, nil), httptest.NewRecorder()
}

func asBuyer(id int64) func(echo.Context) {
	return func(c echo.Context) { c.Set("buyer_id", id) }
}

func withOrderID(id string, buyer int64) func(echo.Context) {
	return func(c echo.Context) {
		c.Set("buyer_id", buyer)
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
}

func TestGetCatalog(t *testing.T) {
	vend := newFakeVendor()
	vend.addStock("us_5", "XQRT-AAAA-0001", "XQRT-AAAA-0002")
	h, _ := newShopFixture(vend)

	code, body := doJSON(t, h.GetCatalog, http.MethodGet, "/v1/catalog", "", asBuyer(42))
	require.Equal(t, http.StatusOK, code)

	items := body["items"].([]any)
	require.Len(t, items, 5)
	bySKU := make(map[string]map[string]any)
	for _, raw := range items {
		item := raw.(map[string]any)
		bySKU[item["sku"].(string)] = item
	}
	assert.Equal(t, float64(2), bySKU["us_5"]["available"])
	assert.Equal(t, float64(0), bySKU["us_10"]["available"])
	assert.Equal(t, float64(500), bySKU["us_5"]["price_cents"])
}

func TestCreateOrder(t *testing.T) {
	vend := newFakeVendor()
	vend.addStock("us_5", "XQRT-AAAA-0001")
	h, _ := newShopFixture(vend)

	code, body := doJSON(t, h.CreateOrder, http.MethodPost, "/v1/orders", `{"sku":"us_5"}`, asBuyer(42))
	require.Equal(t, http.StatusCreated, code)

	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "us_5", body["sku"])
	assert.NotEmpty(t, body["order_id"])
	assert.NotEmpty(t, body["payment_ref"])
	assert.NotEmpty(t, body["expires_at"])
	assert.NotContains(t, body, "secret")
}

func TestCreateOrderOutOfStock(t *testing.T) {
	h, _ := newShopFixture(newFakeVendor())

	code, body := doJSON(t, h.CreateOrder, http.MethodPost, "/v1/orders", `{"sku":"us_5"}`, asBuyer(42))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not in stock", body["error"])
}

func TestCreateOrderValidation(t *testing.T) {
	h, _ := newShopFixture(newFakeVendor())

	code, _ := doJSON(t, h.CreateOrder, http.MethodPost, "/v1/orders", `{}`, asBuyer(42))
	assert.Equal(t, http.StatusBadRequest, code)

	// No buyer in context (middleware bypassed or broken).
	code, _ = doJSON(t, h.CreateOrder, http.MethodPost, "/v1/orders", `{"sku":"us_5"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	vend := newFakeVendor()
	vend.addStock("us_5", "XQRT-AAAA-0001")
	h, _ := newShopFixture(vend)

	o, err := vend.Reserve(context.Background(), "us_5", 42)
	require.NoError(t, err)

	code, body := doJSON(t, h.GetOrder, http.MethodGet, "/v1/orders/"+o.ID, "", withOrderID(o.ID, 42))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, o.ID, body["order_id"])

	// Another buyer gets the same answer as for a nonexistent order.
	code, body = doJSON(t, h.GetOrder, http.MethodGet, "/v1/orders/"+o.ID, "", withOrderID(o.ID, 43))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "could not process", body["error"])

	code2, body2 := doJSON(t, h.GetOrder, http.MethodGet, "/v1/orders/ffffffffffffffff", "", withOrderID("ffffffffffffffff", 43))
	assert.Equal(t, code, code2)
	assert.Equal(t, body["error"], body2["error"])
}

func TestCancelOrder(t *testing.T) {
	vend := newFakeVendor()
	vend.addStock("us_5", "XQRT-AAAA-0001")
	h, _ := newShopFixture(vend)

	o, err := vend.Reserve(context.Background(), "us_5", 42)
	require.NoError(t, err)

	code, body := doJSON(t, h.CancelOrder, http.MethodDelete, "/v1/orders/"+o.ID, "", withOrderID(o.ID, 42))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", body["status"])

	// Cancelling again is rejected generically.
	code, body = doJSON(t, h.CancelOrder, http.MethodDelete, "/v1/orders/"+o.ID, "", withOrderID(o.ID, 42))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "could not process", body["error"])
}

func TestPayOrder(t *testing.T) {
	vend := newFakeVendor()
	vend.addStock("us_5", "XQRT-AAAA-0001")
	h, events := newShopFixture(vend)

	o, err := vend.Reserve(context.Background(), "us_5", 42)
	require.NoError(t, err)

	code, body := doJSON(t, h.PayOrder, http.MethodPost, "/v1/orders/"+o.ID+"/pay", "", withOrderID(o.ID, 42))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", body["status"])
	assert.Equal(t, "XQRT-AAAA-0001", body["secret"])
	assert.NotEmpty(t, body["paid_at"])

	select {
	case ev := <-events:
		assert.Equal(t, o.ID, ev.OrderID)
		assert.Equal(t, int64(42), ev.BuyerID)
		assert.Equal(t, "us_5", ev.SKU)
		assert.Equal(t, "Apple Gift Card (US) $5", ev.Title)
		assert.Equal(t, int64(500), ev.PriceCents)
	case <-time.After(time.Second):
		t.Fatal("no order.paid event published")
	}
}

func TestPayOrderSecondAttemptFailsGenerically(t *testing.T) {
	vend := newFakeVendor()
	vend.addStock("us_5", "XQRT-AAAA-0001")
	h, _ := newShopFixture(vend)

	o, err := vend.Reserve(context.Background(), "us_5", 42)
	require.NoError(t, err)

	code, _ := doJSON(t, h.PayOrder, http.MethodPost, "/v1/orders/"+o.ID+"/pay", "", withOrderID(o.ID, 42))
	require.Equal(t, http.StatusOK, code)

	code, body := doJSON(t, h.PayOrder, http.MethodPost, "/v1/orders/"+o.ID+"/pay", "", withOrderID(o.ID, 42))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "could not process", body["error"])
	assert.NotContains(t, body, "secret")
}

func TestShopStorageFailure(t *testing.T) {
	vend := newFakeVendor()
	vend.failAll = errors.New("connection refused")
	h, _ := newShopFixture(vend)

	code, body := doJSON(t, h.GetCatalog, http.MethodGet, "/v1/catalog", "", asBuyer(42))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "database error", body["error"])
}
