package router

import (
	"context"
	"time"

	"clinicrx/internal/config"
	"clinicrx/internal/handler"
	"clinicrx/internal/infra"
	"clinicrx/internal/metrics"
	"clinicrx/internal/middleware"
	"clinicrx/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services are the engine entry points exposed over HTTP.
type Services struct {
	Sales         service.SaleService
	Receipts      service.ReceiptService
	Prescriptions service.PrescriptionService
	Inventory     service.InventoryService
}

// New returns the configured Gin engine. The rate limiter's purge loop stops
// with ctx.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client, smtpCB *infra.CircuitBreaker, m *metrics.Metrics, svcs Services) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigins...))
	r.Use(middleware.ErrorHandler())

	// Public
	r.GET("/health", handler.Health(db, rdb, smtpCB))
	r.GET("/metrics", gin.WrapH(m.Handler()))

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	go limiter.StartPurge(ctx, 5*time.Minute)
	Mount(r, cfg.JWTSecret, limiter, svcs)

	// Swagger UI: only enabled outside production
	if !cfg.IsProduction() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	return r
}

// Mount registers the authenticated /v1 API. Role gates live here; services
// only record who acted.
func Mount(r gin.IRouter, jwtSecret string, limiter *middleware.RateLimiter, svcs Services) {
	salesH := handler.NewSalesHandler(svcs.Sales, svcs.Receipts)
	rxH := handler.NewPrescriptionsHandler(svcs.Prescriptions)
	invH := handler.NewInventoryHandler(svcs.Inventory)

	const (
		doctor = middleware.RoleDoctor
		staff  = middleware.RoleStaff
		admin  = middleware.RoleAdmin
	)
	anyRole := middleware.RequireRole(doctor, staff, admin)

	v1 := r.Group("/v1", middleware.JWTAuth(jwtSecret))
	if limiter != nil {
		v1.Use(limiter.Handler())
	}
	{
		sales := v1.Group("/sales", middleware.RequireRole(staff, admin))
		{
			sales.POST("", salesH.Checkout)
			sales.GET("", salesH.List)
			sales.GET("/:id", salesH.Get)
			sales.GET("/:id/receipt", salesH.Receipt)
			sales.GET("/:id/receipt/pdf", salesH.ReceiptPDF)
		}

		rx := v1.Group("/prescriptions")
		{
			rx.POST("", middleware.RequireRole(doctor, admin), rxH.Create)
			rx.GET("", anyRole, rxH.List)
			rx.GET("/:id", anyRole, rxH.Get)
			rx.POST("/:id/fulfill", middleware.RequireRole(staff, admin), rxH.Fulfill)
			rx.POST("/:id/cancel", middleware.RequireRole(doctor, admin), rxH.Cancel)
		}

		meds := v1.Group("/medicines")
		{
			meds.GET("/:id", anyRole, invH.GetMedicine)
			meds.GET("/:id/batches", anyRole, invH.ListBatches)
			meds.POST("/:id/batches", middleware.RequireRole(staff, admin), invH.ReceiveBatch)
		}

		inv := v1.Group("/inventory", middleware.RequireRole(staff, admin))
		{
			inv.GET("/alerts", invH.Alerts)
			inv.GET("/movements", invH.Movements)
			inv.POST("/expire", middleware.RequireRole(admin), invH.Expire)
		}
	}
}
