package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/metrics"
)

// RouterConfig holds the dependencies for the router
type RouterConfig struct {
	Handlers       *Handlers
	AuthHandlers   *AuthHandlers
	AdminHandlers  *AdminHandlers
	JWTService     *auth.JWTService
	Metrics        *metrics.ServerMetrics
	MetricsHandler http.Handler
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWTService))

		// Auth
		r.Post("/auth/register", cfg.AuthHandlers.Register)
		r.Post("/auth/login", cfg.AuthHandlers.Login)
		r.Post("/auth/logout", cfg.AuthHandlers.Logout)
		r.With(middleware.RequireAuth(cfg.JWTService)).Get("/auth/me", cfg.AuthHandlers.Me)

		// Catalog
		r.Get("/products", cfg.Handlers.GetProducts)
		r.Get("/products/{id}", cfg.Handlers.GetProduct)

		// Cart, checkout and order history are closed to admins.
		r.Group(func(r chi.Router) {
			r.Use(middleware.DenyRole(user.RoleAdmin))
			r.Use(middleware.Session(cfg.SessionTTL))

			r.Get("/cart", cfg.Handlers.GetCart)
			r.Post("/cart/items", cfg.Handlers.AddToCart)
			r.Put("/cart/items/{id}", cfg.Handlers.UpdateCartItem)
			r.Delete("/cart/items/{id}", cfg.Handlers.RemoveFromCart)
			r.Delete("/cart", cfg.Handlers.ClearCart)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth(cfg.JWTService))
				r.Post("/checkout", cfg.Handlers.Checkout)
				r.Get("/orders", cfg.Handlers.GetOrders)
				r.Get("/orders/{id}", cfg.Handlers.GetOrder)
			})
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.JWTService))
			r.Use(middleware.RequireRole(user.RoleAdmin))

			r.Get("/orders", cfg.AdminHandlers.ListOrders)
			r.Put("/orders/{id}/status", cfg.AdminHandlers.UpdateOrderStatus)
			r.Put("/products/{id}/stock", cfg.AdminHandlers.UpdateStock)
			r.Post("/products", cfg.AdminHandlers.CreateProduct)
			r.Put("/products/{id}", cfg.AdminHandlers.UpdateProduct)
			r.Delete("/products/{id}", cfg.AdminHandlers.DeleteProduct)
			r.Get("/low-stock", cfg.AdminHandlers.LowStock)
		})
	})

	return r
}
