package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/LovationAdmin/finance-api/config"
	"github.com/LovationAdmin/finance-api/handlers"
	"github.com/LovationAdmin/finance-api/middleware"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/services"
	"github.com/LovationAdmin/finance-api/store"
	"github.com/LovationAdmin/finance-api/utils"
)

const Version = "1.0.0"

// Deps are the collaborators the HTTP surface is built from. Aggregator may
// be nil when Pluggy is not configured; sync endpoints then answer 500.
type Deps struct {
	Config     config.Config
	Store      store.Store
	Encryptor  utils.Encryptor
	Aggregator services.Aggregator
	Logger     zerolog.Logger
}

// Server is the assembled router plus the realtime hub it publishes to.
type Server struct {
	Engine *gin.Engine
	WS     *handlers.WSHandler
}

func allowedOrigins(cfg config.Config) []string {
	return []string{cfg.FrontendURL}
}

// NewRouter wires services, handlers and middleware. Background work tied to
// the router stops with ctx.
func NewRouter(ctx context.Context, d Deps) *Server {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ws := handlers.NewWSHandler(d.Logger, allowedOrigins(d.Config))
	limiter := middleware.NewRateLimiter(d.Config.RateLimitPerMinute, time.Minute)
	go limiter.Run(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(d.Config),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RequestLogger(d.Logger))
	router.Use(limiter.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	syncSvc := services.NewSyncService(d.Store, d.Aggregator, d.Encryptor, ws)

	v1 := router.Group("/api/v1")
	{
		SetupWebhookRoutes(v1, syncSvc, d.Config.PluggyWebhookSecret)

		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware(d.Config.JWTSecret))
		{
			protected.GET("/ws", ws.HandleWS)
			SetupTransactionRoutes(protected, services.NewTransactionService(d.Store, ws))
			SetupAccountRoutes(protected, services.NewAccountService(d.Store, d.Encryptor, ws))
			SetupSyncRoutes(protected, syncSvc)
			SetupPlanningRoutes(protected, d.Store, ws)
		}
	}

	return &Server{Engine: router, WS: ws}
}

// SetupTransactionRoutes sets up manual bookkeeping routes.
func SetupTransactionRoutes(rg *gin.RouterGroup, svc *services.TransactionService) {
	h := handlers.NewTransactionHandler(svc)

	rg.GET("/transactions", h.ListTransactions)
	rg.POST("/transactions", h.CreateTransaction)
	rg.GET("/transactions/:id", h.GetTransaction)
	rg.PUT("/transactions/:id", h.UpdateTransaction)
	rg.DELETE("/transactions/:id", h.DeleteTransaction)
}

func SetupAccountRoutes(rg *gin.RouterGroup, svc *services.AccountService) {
	h := handlers.NewAccountHandler(svc)

	rg.GET("/accounts", h.ListAccounts)
	rg.POST("/accounts", h.CreateAccount)
	rg.GET("/accounts/:id", h.GetAccount)
	rg.PUT("/accounts/:id", h.UpdateAccount)
	rg.DELETE("/accounts/:id", h.DeleteAccount)
}

func SetupSyncRoutes(rg *gin.RouterGroup, svc *services.SyncService) {
	h := handlers.NewSyncHandler(svc, "")

	rg.POST("/sync/import", h.ImportItem)
	rg.GET("/sync", h.ListSynced)
}

// SetupWebhookRoutes sets up the public aggregator callback.
func SetupWebhookRoutes(rg *gin.RouterGroup, svc *services.SyncService, secret string) {
	h := handlers.NewSyncHandler(svc, secret)

	rg.POST("/webhooks/pluggy", h.Webhook)
}

func SetupPlanningRoutes(rg *gin.RouterGroup, s store.Store, n services.Notifier) {
	handlers.NewPlanningHandler(services.NewLoanService(s, n), sanitize.ParseLoan).Register(rg, "/loans")
	handlers.NewPlanningHandler(services.NewSubscriptionService(s, n), sanitize.ParseSubscription).Register(rg, "/subscriptions")
	handlers.NewPlanningHandler(services.NewBudgetService(s, n), sanitize.ParseBudget).Register(rg, "/budgets")
	handlers.NewPlanningHandler(services.NewGoalService(s, n), sanitize.ParseGoal).Register(rg, "/goals")
}
