package handler

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/avekor/giftcode-vending/internal/catalog"
	"github.com/avekor/giftcode-vending/internal/ledger"
)

// AdminHandler serves the operator routes: stock management and sales
// reporting.  Every route sits behind the ADMIN role.
type AdminHandler struct {
	Vendor  Vendor
	Catalog catalog.Catalog
	Log     *zap.Logger
}

// NewAdminHandler wires the admin handler to the ledger.
func NewAdminHandler(v Vendor, cat catalog.Catalog, log *zap.Logger) *AdminHandler {
	return &AdminHandler{Vendor: v, Catalog: cat, Log: log}
}

// GetStock reports available-code counts per SKU, including catalog
// SKUs that currently have zero stock.
// GET /v1/admin/stock
func (h *AdminHandler) GetStock(c echo.Context) error {
	counts, err := h.Vendor.AvailableCounts(c.Request().Context())
	if err != nil {
		return ledgerError(c, err)
	}
	stock := make(map[string]int, len(h.Catalog))
	for sku := range h.Catalog {
		stock[sku] = counts[sku]
	}
	return c.JSON(http.StatusOK, echo.Map{"stock": stock})
}

type addCodeRequest struct {
	SKU    string `json:"sku"`
	Secret string `json:"secret"`
}

// AddCode inserts a single code into the ledger.
// POST /v1/admin/codes
func (h *AdminHandler) AddCode(c echo.Context) error {
	var req addCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	err := h.Vendor.InsertCode(c.Request().Context(), req.SKU, req.Secret)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{"status": "added", "sku": req.SKU})
	case errors.Is(err, ledger.ErrDuplicateCode):
		return c.JSON(http.StatusConflict, echo.Map{"error": "code already exists"})
	case errors.Is(err, ledger.ErrNotFound):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown sku"})
	case errors.Is(err, ledger.ErrInvalidState):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "secret is required"})
	default:
		return ledgerError(c, err)
	}
}

// ImportCodes bulk-loads codes from a CSV body with a "sku,code" header
// line.  Rows with unknown SKUs, empty secrets or already-known secrets
// are skipped and counted, never aborting the rest of the file.
// POST /v1/admin/codes/import
func (h *AdminHandler) ImportCodes(c echo.Context) error {
	r := csv.NewReader(c.Request().Body)
	r.FieldsPerRecord = -1 // tolerate ragged rows, they count as skipped

	header, err := r.Read()
	if err != nil || len(header) < 2 || header[0] != "sku" || header[1] != "code" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "expected csv with sku,code header"})
	}

	ctx := c.Request().Context()
	added, skipped := 0, 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.Log.Warn("code import: malformed csv row", zap.Error(err))
			skipped++
			continue
		}
		if len(rec) < 2 {
			skipped++
			continue
		}
		if err := h.Vendor.InsertCode(ctx, rec[0], rec[1]); err != nil {
			if errors.Is(err, ledger.ErrDuplicateCode) || errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrInvalidState) {
				skipped++
				continue
			}
			return ledgerError(c, err)
		}
		added++
	}
	return c.JSON(http.StatusOK, echo.Map{"added": added, "skipped": skipped})
}

// ExportCodes streams the still-available codes as CSV, optionally
// filtered to one SKU via ?sku=.  Reserved and sold codes never leave
// the ledger.
// GET /v1/admin/codes/export
func (h *AdminHandler) ExportCodes(c echo.Context) error {
	sku := c.QueryParam("sku")
	if sku != "" {
		if _, ok := h.Catalog.Get(sku); !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown sku"})
		}
	}
	codes, err := h.Vendor.ListAvailable(c.Request().Context(), sku)
	if err != nil {
		return ledgerError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="codes.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write([]string{"sku", "code"}); err != nil {
		return err
	}
	for _, code := range codes {
		if err := w.Write([]string{code.SKU, code.Secret}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// GetOrders lists the most recent orders across all buyers.
// GET /v1/admin/orders?limit=50
func (h *AdminHandler) GetOrders(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be between 1 and 500"})
		}
		limit = n
	}
	orders, err := h.Vendor.ListRecentOrders(c.Request().Context(), limit)
	if err != nil {
		return ledgerError(c, err)
	}
	out := make([]echo.Map, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		m := echo.Map{
			"order_id":    o.ID,
			"buyer_id":    o.BuyerID,
			"sku":         o.SKU,
			"price_cents": o.PriceCents,
			"currency":    o.Currency,
			"status":      string(o.Status),
			"created_at":  o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if o.PaidAt != nil {
			m["paid_at"] = o.PaidAt.UTC().Format(time.RFC3339)
		}
		out = append(out, m)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": out})
}

// GetStats reports aggregate sales figures: distinct buyers and paid
// revenue per currency.
// GET /v1/admin/stats
func (h *AdminHandler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()
	buyers, err := h.Vendor.CountDistinctBuyers(ctx)
	if err != nil {
		return ledgerError(c, err)
	}
	totals, err := h.Vendor.PaidTotals(ctx)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"distinct_buyers":  buyers,
		"paid_total_cents": totals,
	})
}
