package routes_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/api/routes"
	"github.com/angelmondragon/retail-backend/internal/app"
	"github.com/angelmondragon/retail-backend/internal/dbtest"
	"github.com/angelmondragon/retail-backend/pkg/auth"
	"github.com/angelmondragon/retail-backend/pkg/config"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/metrics"
)

type harness struct {
	t       *testing.T
	handler http.Handler
	conn    *gorm.DB
	cfg     *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	cfg := &config.Config{
		App:     config.AppConfig{Env: config.AppEnvDev, Timezone: "UTC"},
		JWT:     config.JWTConfig{Secret: "test-secret", Issuer: "retail-test", ExpirationMinutes: 30},
		Catalog: config.CatalogConfig{AttributeDeletePolicy: "restrict"},
		Orders:  config.OrdersConfig{ShippingCost: "15000"},
	}
	reg := prometheus.NewRegistry()
	logg := logger.Nop()
	dbClient := db.NewFromConn(conn)

	svc, err := app.Build(dbClient, cfg, metrics.NewSalesMetrics(reg), logg)
	require.NoError(t, err)

	return &harness{
		t:       t,
		handler: routes.NewRouter(cfg, logg, dbClient, nil, reg, svc),
		conn:    conn,
		cfg:     cfg,
	}
}

func (h *harness) token(role enums.Role) string {
	h.t.Helper()
	token, err := auth.MintAccessToken(h.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dest), string(envelope.Data))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Error.Code
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h := newHarness(t)

	live := h.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, live.Code)
	assert.Equal(t, config.AppEnvDev, live.Header().Get("X-Retail-Env"))
	assert.NotEmpty(t, live.Header().Get("X-Request-Id"))

	ready := h.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, ready.Code)

	metricsRec := h.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, metricsRec.Code)
}

func TestAPIRequiresTokenAndAdminRole(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	client := h.token(enums.RoleClient)
	rec = h.do(http.MethodGet, "/api/v1/products", client, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/sales", client, map[string]any{"payment_method": "cash"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = h.do(http.MethodGet, "/api/v1/reports/sales", client, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSaleOverHTTP(t *testing.T) {
	h := newHarness(t)
	admin := h.token(enums.RoleAdmin)

	size := dbtest.MustCreateAttribute(t, h.conn, "Size", "Large")
	p := dbtest.MustCreateProduct(t, h.conn, "100", 10)
	large := size.Values[0].ID
	dbtest.MustAttachValue(t, h.conn, p.ID, large, "10", 5)

	line := func(qty int) map[string]any {
		return map[string]any{
			"payment_method": "cash",
			"items": []map[string]any{{
				"product_id": p.ID,
				"quantity":   qty,
				"variants":   []map[string]any{{"attribute_value_id": large}},
			}},
		}
	}

	rec := h.do(http.MethodPost, "/api/v1/sales", admin, line(3))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sale struct {
		ID    uuid.UUID       `json:"id"`
		Total decimal.Decimal `json:"total"`
		Items []struct {
			UnitPrice decimal.Decimal `json:"unit_price"`
		} `json:"items"`
	}
	decodeData(t, rec, &sale)
	assert.True(t, sale.Total.Equal(decimal.NewFromInt(330)), sale.Total.String())
	require.Len(t, sale.Items, 1)
	assert.True(t, sale.Items[0].UnitPrice.Equal(decimal.NewFromInt(110)))

	rec = h.do(http.MethodPost, "/api/v1/sales", admin, line(6))
	assert.Equal(t, http.StatusConflict, rec.Code)
	var shortage struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shortage))
	assert.Equal(t, "INSUFFICIENT_STOCK", shortage.Error.Code)
	assert.Equal(t, float64(2), shortage.Error.Details["available"])

	rec = h.do(http.MethodPost, "/api/v1/sales", admin, line(0))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_QUANTITY", errorCode(t, rec))

	rec = h.do(http.MethodGet, "/api/v1/sales/"+sale.ID.String(), admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/sales/lookup?barcode="+p.Barcode, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/reports/sales?period=daily", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed struct {
		Stats struct {
			POSTotal decimal.Decimal `json:"pos_total"`
		} `json:"stats"`
	}
	decodeData(t, rec, &feed)
	assert.True(t, feed.Stats.POSTotal.Equal(decimal.NewFromInt(330)))

	metricsRec := h.do(http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, metricsRec.Body.String(), `sales_committed_total{payment_method="cash"} 1`)
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	h := newHarness(t)
	admin := h.token(enums.RoleAdmin)

	rec := h.do(http.MethodPost, "/api/v1/attributes", admin, map[string]any{"name": "Color", "colour": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = h.do(http.MethodGet, "/api/v1/products/not-a-uuid", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogAndStockInOverHTTP(t *testing.T) {
	h := newHarness(t)
	admin := h.token(enums.RoleAdmin)

	rec := h.do(http.MethodPost, "/api/v1/attributes", admin, map[string]any{
		"name":   "Color",
		"values": []map[string]any{{"name": "Red", "price_delta": "5"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var attr struct {
		ID     uuid.UUID `json:"id"`
		Values []struct {
			ID uuid.UUID `json:"id"`
		} `json:"values"`
	}
	decodeData(t, rec, &attr)
	require.Len(t, attr.Values, 1)

	rec = h.do(http.MethodPost, "/api/v1/products", admin, map[string]any{
		"name":       "Mug",
		"base_price": "20",
		"markup":     "0",
		"price":      "20",
		"stock":      4,
		"associations": map[string]any{
			"attribute_ids": []uuid.UUID{attr.ID},
			"values":        []map[string]any{{"attribute_value_id": attr.Values[0].ID, "stock": 4}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID      uuid.UUID `json:"id"`
		Barcode string    `json:"barcode"`
	}
	decodeData(t, rec, &created)
	assert.Len(t, created.Barcode, 12)

	rec = h.do(http.MethodGet, "/api/v1/products/barcode/check?barcode="+created.Barcode, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"exists":true`))

	rec = h.do(http.MethodPost, "/api/v1/products/"+created.ID.String()+"/stock-in", admin, map[string]any{
		"quantity": 3,
		"variants": []map[string]any{{"attribute_value_id": attr.Values[0].ID}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var stored models.Product
	require.NoError(t, h.conn.First(&stored, "id = ?", created.ID).Error)
	assert.Equal(t, 7, stored.Stock)

	rec = h.do(http.MethodGet, "/api/v1/products/"+created.ID.String()+"/movements", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var movements struct {
		Movements []struct {
			Type string `json:"type"`
		} `json:"movements"`
	}
	decodeData(t, rec, &movements)
	assert.Len(t, movements.Movements, 2)
}

func TestCartToOrderOverHTTP(t *testing.T) {
	h := newHarness(t)
	client := h.token(enums.RoleClient)
	admin := h.token(enums.RoleAdmin)
	p := dbtest.MustCreateProduct(t, h.conn, "50", 10)

	rec := h.do(http.MethodPost, "/api/v1/cart/items", client, map[string]any{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/v1/orders", client, map[string]any{
		"shipping_address": "Calle 1 # 2-3",
		"city":             "Medellin",
		"phone":            "3000000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order struct {
		ID     uuid.UUID       `json:"id"`
		Status string          `json:"status"`
		Total  decimal.Decimal `json:"total"`
	}
	decodeData(t, rec, &order)
	assert.Equal(t, "pending", order.Status)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(15100)))

	rec = h.do(http.MethodGet, "/api/v1/orders/"+order.ID.String(), client, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/v1/orders/"+order.ID.String(), h.token(enums.RoleClient), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPatch, "/api/v1/admin/orders/"+order.ID.String()+"/status", admin, map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = h.do(http.MethodPatch, "/api/v1/admin/orders/"+order.ID.String()+"/status", admin, map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/cart", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cartDTO struct {
		Items []any `json:"items"`
	}
	decodeData(t, rec, &cartDTO)
	assert.Empty(t, cartDTO.Items)
}
