package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/savor-erp/savor-erp/internal/assistant"
	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/auth"
	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/customers"
	"github.com/savor-erp/savor-erp/internal/inventory"
	"github.com/savor-erp/savor-erp/internal/ledger"
	"github.com/savor-erp/savor-erp/internal/observability"
	"github.com/savor-erp/savor-erp/internal/orders"
	"github.com/savor-erp/savor-erp/internal/rbac"
	"github.com/savor-erp/savor-erp/internal/syncq"
	"github.com/savor-erp/savor-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AuthService *auth.Service
	RBAC        *rbac.Service

	AuthHandler      *auth.Handler
	CatalogHandler   *catalog.Handler
	OrdersHandler    *orders.Handler
	InventoryHandler *inventory.Handler
	LedgerHandler    *ledger.Handler
	AuditHandler     *audit.Handler
	SyncHandler      *syncq.Handler
	CustomerHandler  *customers.Handler
	AssistantHandler *assistant.Handler
	JobsHandler      *jobs.Handler
}

// NewRouter constructs the chi router with the full API surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", params.AuthHandler.MountPublicRoutes)

		api.Group(func(private chi.Router) {
			private.Use(params.AuthService.Middleware)

			private.Route("/auth", func(g chi.Router) {
				g.Use(params.RBAC.RequireAny(rbac.PermCfgUserManage, rbac.PermNavPOS))
				params.AuthHandler.MountRoutes(g)
			})

			private.Route("/orders", func(g chi.Router) {
				g.Use(params.RBAC.RequireAny(rbac.PermOpOrderCreate, rbac.PermOpOrderStatus, rbac.PermDataViewSales))
				params.OrdersHandler.MountRoutes(g)
			})

			private.Route("/menu", func(g chi.Router) {
				g.Use(params.RBAC.RequireAny(rbac.PermNavPOS, rbac.PermCfgMenuEdit))
				params.CatalogHandler.MountRoutes(g)
			})

			private.Route("/inventory", func(g chi.Router) {
				g.Use(params.RBAC.RequireAny(rbac.PermNavInventory, rbac.PermOpStockAdjust, rbac.PermDataViewInventory))
				params.InventoryHandler.MountRoutes(g)
			})

			private.Route("/ledger", func(g chi.Router) {
				g.Use(params.RBAC.RequireAny(rbac.PermNavFinance, rbac.PermDataViewLedger))
				params.LedgerHandler.MountRoutes(g)
			})

			private.Route("/audit", func(g chi.Router) {
				g.Use(params.RBAC.RequireAll(rbac.PermDataViewAudit))
				params.AuditHandler.MountRoutes(g)
			})

			private.Route("/sync", func(g chi.Router) {
				g.Use(params.RBAC.RequireAny(rbac.PermOpSyncReplay, rbac.PermNavPOS))
				params.SyncHandler.MountRoutes(g)
			})

			private.Route("/customers", func(g chi.Router) {
				g.Use(params.RBAC.RequireAny(rbac.PermNavPOS, rbac.PermOpCustomerCreate))
				params.CustomerHandler.MountRoutes(g)
			})

			if params.AssistantHandler != nil {
				private.Route("/assistant", params.AssistantHandler.MountRoutes)
			}

			if params.JobsHandler != nil {
				private.Route("/jobs", func(g chi.Router) {
					g.Use(params.RBAC.RequireAll(rbac.PermOpSyncReplay))
					params.JobsHandler.MountRoutes(g)
				})
			}
		})
	})

	return r
}
