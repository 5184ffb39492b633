// Package app wires the domain services on top of one database connection.
package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/api/routes"
	"github.com/angelmondragon/retail-backend/internal/attributes"
	"github.com/angelmondragon/retail-backend/internal/cart"
	"github.com/angelmondragon/retail-backend/internal/orders"
	product "github.com/angelmondragon/retail-backend/internal/products"
	"github.com/angelmondragon/retail-backend/internal/reporting"
	"github.com/angelmondragon/retail-backend/internal/sales"
	"github.com/angelmondragon/retail-backend/internal/stock"
	"github.com/angelmondragon/retail-backend/pkg/config"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/metrics"
)

// Build constructs every HTTP-facing service. Contract payments have no
// in-process source, so the reporting feed merges POS sales and web orders
// only.
func Build(dbClient *db.Client, cfg *config.Config, m *metrics.SalesMetrics, logg *logger.Logger) (routes.Services, error) {
	var out routes.Services
	conn := dbClient.DB()

	policy, err := config.ParseDeletePolicy(cfg.Catalog.AttributeDeletePolicy)
	if err != nil {
		return out, err
	}
	shipping, err := decimal.NewFromString(cfg.Orders.ShippingCost)
	if err != nil {
		return out, fmt.Errorf("parse %s: %w", config.EnvOrderShippingCost, err)
	}
	loc := time.Local
	if cfg.App.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.App.Timezone); err != nil {
			return out, fmt.Errorf("load timezone %q: %w", cfg.App.Timezone, err)
		}
	}

	productRepo := product.NewRepository(conn)
	projector := product.NewProjector(logg)

	if out.Stock, err = stock.NewService(stock.NewRepository(conn), productRepo, dbClient, projector, m, logg); err != nil {
		return out, fmt.Errorf("stock service: %w", err)
	}
	if out.Products, err = product.NewService(productRepo, dbClient, projector, out.Stock); err != nil {
		return out, fmt.Errorf("product service: %w", err)
	}
	if out.Attributes, err = attributes.NewService(attributes.NewRepository(conn), dbClient, projector, policy, logg); err != nil {
		return out, fmt.Errorf("attribute service: %w", err)
	}
	if out.Sales, err = sales.NewService(sales.NewRepository(conn), productRepo, out.Stock, projector, dbClient, m, logg); err != nil {
		return out, fmt.Errorf("sales service: %w", err)
	}

	cartRepo := cart.NewRepository(conn)
	if out.Cart, err = cart.NewService(cartRepo, dbClient, productRepo); err != nil {
		return out, fmt.Errorf("cart service: %w", err)
	}
	if out.Orders, err = orders.NewService(orders.NewRepository(conn), cartRepo, productRepo, dbClient, shipping, logg); err != nil {
		return out, fmt.Errorf("order service: %w", err)
	}
	if out.Reporting, err = reporting.NewService(reporting.NewPOSSales(conn), reporting.NewWebOrders(conn), nil, loc, logg); err != nil {
		return out, fmt.Errorf("reporting service: %w", err)
	}
	return out, nil
}
