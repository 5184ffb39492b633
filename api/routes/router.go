package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/retail-backend/api/controllers"
	"github.com/angelmondragon/retail-backend/api/middleware"
	"github.com/angelmondragon/retail-backend/internal/attributes"
	"github.com/angelmondragon/retail-backend/internal/cart"
	"github.com/angelmondragon/retail-backend/internal/orders"
	products "github.com/angelmondragon/retail-backend/internal/products"
	"github.com/angelmondragon/retail-backend/internal/reporting"
	"github.com/angelmondragon/retail-backend/internal/sales"
	"github.com/angelmondragon/retail-backend/internal/stock"
	"github.com/angelmondragon/retail-backend/pkg/config"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/redis"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Attributes attributes.Service
	Products   products.Service
	Stock      stock.Service
	Sales      sales.Service
	Cart       cart.Service
	Orders     orders.Service
	Reporting  reporting.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// a nil *redis.Client must not become a non-nil interface
	var idemStore redis.IdempotencyStore
	readyDeps := map[string]controllers.Pinger{"database": dbP}
	if redisClient != nil {
		idemStore = redisClient
		readyDeps["redis"] = redisClient
	}
	idempotent := middleware.Idempotency(idemStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readyDeps, logg))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/products", controllers.ListProducts(svc.Products, logg))
		r.Get("/products/{id}", controllers.GetProduct(svc.Products, logg))
		r.Get("/categories", controllers.ListCategories(svc.Products, logg))
		r.Get("/attributes", controllers.ListAttributes(svc.Attributes, logg))
		r.Get("/attributes/{id}", controllers.GetAttribute(svc.Attributes, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.GetCart(svc.Cart, logg))
			r.Delete("/", controllers.ClearCart(svc.Cart, logg))
			r.Post("/items", controllers.AddCartItem(svc.Cart, logg))
			r.Patch("/items/{itemID}", controllers.UpdateCartItem(svc.Cart, logg))
			r.Delete("/items/{itemID}", controllers.RemoveCartItem(svc.Cart, logg))
		})

		// idempotency rules match full route patterns, so these stay flat
		r.With(idempotent).Post("/orders", controllers.PlaceOrder(svc.Orders, logg))
		r.Get("/orders", controllers.ListMyOrders(svc.Orders, logg))
		r.Get("/orders/{id}", controllers.GetMyOrder(svc.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))

			r.Post("/attributes", controllers.CreateAttribute(svc.Attributes, logg))
			r.Put("/attributes/{id}", controllers.UpdateAttribute(svc.Attributes, logg))
			r.Delete("/attributes/{id}", controllers.DeleteAttribute(svc.Attributes, logg))
			r.Post("/attributes/{id}/values", controllers.CreateAttributeValue(svc.Attributes, logg))
			r.Put("/attributes/{id}/values/{valueID}", controllers.UpdateAttributeValue(svc.Attributes, logg))
			r.Delete("/attributes/{id}/values/{valueID}", controllers.DeleteAttributeValue(svc.Attributes, logg))

			r.Post("/categories", controllers.CreateCategory(svc.Products, logg))

			r.Post("/products", controllers.CreateProduct(svc.Products, logg))
			r.Get("/products/barcode/check", controllers.CheckBarcode(svc.Products, logg))
			r.Post("/products/barcode/generate", controllers.GenerateBarcode(svc.Products, logg))
			r.Put("/products/{id}", controllers.UpdateProduct(svc.Products, logg))
			r.Delete("/products/{id}", controllers.DeleteProduct(svc.Products, logg))
			r.Put("/products/{id}/associations", controllers.SyncProductAssociations(svc.Products, logg))
			r.With(idempotent).Post("/products/{id}/stock-in", controllers.StockIn(svc.Stock, logg))
			r.Get("/products/{id}/movements", controllers.ListMovements(svc.Stock, logg))

			r.With(idempotent).Post("/sales", controllers.CreateSale(svc.Sales, logg))
			r.Get("/sales", controllers.ListSales(svc.Sales, logg))
			r.Get("/sales/lookup", controllers.LookupBarcode(svc.Sales, logg))
			r.Get("/sales/{id}", controllers.GetSale(svc.Sales, logg))

			r.Route("/admin/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(svc.Orders, logg))
				r.Get("/{id}", controllers.AdminGetOrder(svc.Orders, logg))
				r.Patch("/{id}/status", controllers.AdminUpdateOrderStatus(svc.Orders, logg))
			})

			r.Get("/reports/sales", controllers.SalesFeed(svc.Reporting, logg))
		})
	})

	return r
}
