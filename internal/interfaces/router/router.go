package router

import (
	"net/http"

	"sharehouse-backend/internal/application/ledger"
	"sharehouse-backend/internal/application/listings"
	"sharehouse-backend/internal/application/negotiation"
	"sharehouse-backend/internal/application/notifications"
	"sharehouse-backend/internal/application/payments"
	"sharehouse-backend/internal/application/splits"
	"sharehouse-backend/internal/application/trading"
	"sharehouse-backend/internal/application/transactions"
	"sharehouse-backend/internal/config"
	"sharehouse-backend/internal/health"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/infrastructure/events"
	"sharehouse-backend/internal/infrastructure/metrics"
	"sharehouse-backend/internal/infrastructure/stripeclient"
	healthhandler "sharehouse-backend/internal/interfaces/handlers/health"
	househandler "sharehouse-backend/internal/interfaces/handlers/houses"
	listhandler "sharehouse-backend/internal/interfaces/handlers/listings"
	neghandler "sharehouse-backend/internal/interfaces/handlers/negotiation"
	payhandler "sharehouse-backend/internal/interfaces/handlers/payments"
	splithandler "sharehouse-backend/internal/interfaces/handlers/splits"
	tradehandler "sharehouse-backend/internal/interfaces/handlers/trading"
	txhandler "sharehouse-backend/internal/interfaces/handlers/transactions"
	"sharehouse-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Deps are the stores CreateApp would otherwise open from cfg. Tests pass
// their own.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Provider payments.Provider
	Notifier notifications.Notifier
}

// CreateApp opens the stores named in cfg and builds the app around them.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	var deps Deps
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		deps.Redis = redis.NewClient(opts)
	}
	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		deps.DB = db
	}
	if cfg.StripeSecretKey != "" {
		deps.Provider = stripeclient.New(cfg.StripeSecretKey, nil)
	}
	app, err := Build(cfg, deps)
	if err != nil {
		return nil, nil, nil, err
	}
	return app, deps.DB, deps.Redis, nil
}

// Build wires services and routes. Domain routes are only mounted when a
// database is available; health and metrics always are.
func Build(cfg *config.Config, deps Deps) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.Noop{}
		if len(cfg.KafkaBrokers) > 0 {
			producer, err := events.NewSyncProducer(cfg.KafkaBrokers)
			if err != nil {
				return nil, err
			}
			kn := notifications.NewKafkaNotifier(producer, cfg.KafkaTradeTopic, m)
			notifier = kn
			app.Hooks().OnShutdown(func() error {
				kn.Wait()
				return producer.Close()
			})
		}
	}

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	var (
		db  = deps.DB
		rdb = deps.Redis
	)

	var paySvc *payments.Service
	if db != nil {
		paySvc = &payments.Service{
			DB:          db,
			LockTimeout: cfg.LockTimeout,
			Provider:    deps.Provider,
			Settings: payments.Settings{
				WebhookSecret:      cfg.StripeWebhookSecret,
				PlatformFeePercent: cfg.PlatformFeePercent,
				IdempotencyWindow:  cfg.CheckoutIdempotencyWindow,
				SuccessURL:         cfg.CheckoutSuccessURL,
				CancelURL:          cfg.CheckoutCancelURL,
				OnboardReturnURL:   cfg.OnboardReturnURL,
			},
			Notifier: notifier,
			Metrics:  m,
		}
		// The webhook reads the raw body and must not depend on a session.
		ph := &payhandler.Handlers{Service: paySvc}
		app.Post("/stripe/webhook", ph.Webhook)
	}

	app.Use(middleware.Session(rdb))
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb: rdb,
		Options: health.Options{
			PaymentsConfigured: deps.Provider != nil,
			EventsConfigured:   len(cfg.KafkaBrokers) > 0 || deps.Notifier != nil,
		},
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if db != nil {
		hh.DB = &gormDBPinger{db: db}
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/metrics", m.Handler())

	if db == nil {
		log.Warn().Msg("DATABASE_URL not set, domain routes disabled")
		return app, nil
	}

	ledgerSvc := &ledger.Service{DB: db, LockTimeout: cfg.LockTimeout}
	listSvc := &listings.Service{DB: db, LockTimeout: cfg.LockTimeout, DefaultCurrency: cfg.DefaultCurrency}
	negSvc := &negotiation.Service{DB: db, LockTimeout: cfg.LockTimeout, Listings: listSvc}
	splitSvc := &splits.Service{DB: db, LockTimeout: cfg.LockTimeout, Metrics: m}
	tradeSvc := &trading.Service{DB: db, LockTimeout: cfg.LockTimeout, Notifier: notifier, Metrics: m}

	houses := &househandler.Handlers{Ledger: ledgerSvc}
	lh := &listhandler.Handlers{Service: listSvc}
	nh := &neghandler.Handlers{Service: negSvc}
	sh := &splithandler.Handlers{Service: splitSvc}
	th := &tradehandler.Handlers{Service: tradeSvc}
	ph := &payhandler.Handlers{Service: paySvc}
	xh := &txhandler.Handlers{Service: &transactions.Service{DB: db}}

	// Bot endpoints authenticate with X-User-Secret instead of a session.
	ext := app.Group("/ext", middleware.RequireExtSecret(cfg.ExtUserSecretHash))
	ext.Post("/house/:id/occupy", houses.ExtOccupy)
	ext.Post("/split_limit_requests/:rid/decide", sh.DecideLimit)

	auth := middleware.RequireAuth()

	house := app.Group("/house", auth)
	house.Get("/:id", houses.Detail)
	house.Post("/:id/occupy", houses.Occupy)
	house.Post("/:id/list", lh.List)
	house.Post("/:id/unlist", lh.Unlist)
	house.Post("/:id/buy", th.Buy)
	house.Get("/:id/listings", lh.ForHouse)
	house.Post("/:id/conversations", nh.Open)

	hs := app.Group("/houses", auth)
	hs.Get("/owned", houses.Owned)
	hs.Post("/:id/split_shares", sh.Direct)
	hs.Post("/:id/split_direct", sh.Direct)
	hs.Post("/:id/split_proposals", sh.Propose)
	hs.Get("/:id/split_proposals", sh.Current)
	hs.Post("/:id/split_proposals/:pid/vote", sh.Vote)
	hs.Post("/:id/split_proposals/:pid/cancel", sh.Cancel)
	hs.Post("/:id/split_limit_requests", sh.RequestLimit)

	app.Post("/trade/finalize", auth, th.Finalize)
	app.Get("/trades/mine", auth, th.Mine)

	lg := app.Group("/listings", auth)
	lg.Get("/", lh.Browse)
	lg.Get("/cheapest", lh.Cheapest)
	lg.Get("/mine", lh.Mine)
	lg.Get("/:id", lh.Get)

	mg := app.Group("/messages", auth)
	mg.Get("/", nh.Inbox)
	mg.Get("/:conv", nh.Thread)
	mg.Post("/:conv/send", nh.Send)
	mg.Post("/:conv/offer", nh.Offer)
	mg.Post("/:conv/counter", nh.Counter)
	mg.Post("/:conv/accept", nh.Accept)
	mg.Post("/:conv/finalize", nh.Finalize)
	mg.Post("/:conv/stop", nh.Stop)
	mg.Post("/:conv/resume", nh.Resume)

	pg := app.Group("/payments", auth)
	pg.Post("/onboard", ph.Onboard)
	pg.Get("/status", ph.Status)
	pg.Get("/transactions", xh.History)
	app.Post("/checkout", auth, ph.Checkout)

	return app, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
