package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/grade-stakes/grade_stakes/internal/auth"
	"github.com/grade-stakes/grade_stakes/internal/catalog"
	"github.com/grade-stakes/grade_stakes/internal/config"
	"github.com/grade-stakes/grade_stakes/internal/identity"
	"github.com/grade-stakes/grade_stakes/internal/ledger"
	"github.com/grade-stakes/grade_stakes/internal/matching"
	"github.com/grade-stakes/grade_stakes/internal/middleware"
	"github.com/grade-stakes/grade_stakes/internal/notification"
	"github.com/grade-stakes/grade_stakes/internal/oracle"
	"github.com/grade-stakes/grade_stakes/internal/settlement"
	"github.com/grade-stakes/grade_stakes/internal/wager"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Services holds the wired application services. Setup returns it so main
// can hand the settlement engine and wager service to the sweeper.
type Services struct {
	Ledger     ledger.Ledger
	Wagers     *wager.Service
	Settlement *settlement.Engine
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	} else {
		app.Use(middleware.Audit(d.Logger))
	}
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	// Backends: postgres when a pool is present, in-memory otherwise (dev).
	var ledgerBackend ledger.Ledger
	var wagerStore wager.Store
	var identityRepo identity.Repository
	var catalogRepo catalog.Repository
	var tokenStore oracle.TokenStore
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		wagerStore = wager.NewPostgresStore(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
		catalogRepo = catalog.NewPostgresRepository(d.DB)
		tokenStore = oracle.NewPostgresTokenStore(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		wagerStore = wager.NewMemoryStore()
		identityRepo = identity.NewMemoryRepository()
		catalogRepo = catalog.NewMemoryRepository()
		tokenStore = oracle.NewMemoryTokenStore()
	}

	// Grade source: the real LMS gateway when a base URL is configured,
	// otherwise a static gateway whose grades are seeded by hand in dev.
	var gradeSource interface {
		oracle.Gateway
		oracle.TokenVerifier
	}
	if d.Cfg.LMSBaseURL != "" {
		gradeSource = oracle.NewLMSGateway(d.Cfg.LMSBaseURL, tokenStore, catalogRepo, d.Logger)
	} else {
		gradeSource = oracle.NewStaticGateway()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	identitySvc := identity.NewService(identityRepo, ledgerBackend)
	authSvc := auth.NewService(d.Cfg)
	wagerSvc := wager.NewService(wagerStore, ledgerBackend, d.Logger)
	matchSvc := matching.NewService(wagerStore, ledgerBackend, notifier, d.Logger)
	engine := settlement.NewEngine(wagerStore, ledgerBackend, gradeSource, notifier, d.Cfg.SettlementGrace, d.Logger)
	linkSvc := oracle.NewLinkService(tokenStore, gradeSource, d.Logger)

	identityHandler := identity.NewHandler(identitySvc)
	authHandler := auth.NewHandler(identitySvc, authSvc)
	ledgerHandler := ledger.NewHandler(ledgerBackend)
	wagerHandler := wager.NewHandler(wagerSvc)
	matchHandler := matching.NewHandler(matchSvc)
	settlementHandler := settlement.NewHandler(engine)
	oracleHandler := oracle.NewHandler(linkSvc)
	catalogHandler := catalog.NewHandler(catalogRepo)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDLocal).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Protected routes
	jwtmw := middleware.JWTAuth(authSvc, identityRepo)
	protected := api.Group("", jwtmw)
	protected.Get("/me", identityHandler.Me)
	RegisterLedgerRoutes(protected, ledgerHandler)
	RegisterWagerRoutes(protected, wagerHandler, matchHandler, settlementHandler)
	RegisterOracleRoutes(protected, oracleHandler)
	RegisterCatalogRoutes(protected, catalogHandler)

	return &Services{Ledger: ledgerBackend, Wagers: wagerSvc, Settlement: engine}, nil
}
