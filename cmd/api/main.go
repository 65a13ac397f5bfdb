package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contact-automation/internal/audit"
	"contact-automation/internal/auth"
	"contact-automation/internal/calls"
	"contact-automation/internal/classifier"
	"contact-automation/internal/config"
	"contact-automation/internal/coverage"
	"contact-automation/internal/crm"
	"contact-automation/internal/httpapi"
	"contact-automation/internal/keypress"
	"contact-automation/internal/ledger"
	"contact-automation/internal/mailparse"
	"contact-automation/internal/metrics"
	"contact-automation/internal/reporting"
	"contact-automation/internal/routing"
	"contact-automation/internal/speech"
	"contact-automation/internal/telephony"
	"contact-automation/internal/voicemail"
	"contact-automation/pkg/logger"
	"contact-automation/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "contact-automation")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	window, err := cfg.Window()
	if err != nil {
		log.Error("business window invalid", "err", err)
		os.Exit(1)
	}

	// Storage: postgres and redis are optional for local runs.
	var ledgerRepo ledger.Repository = ledger.NewMemoryRepo()
	var auditRepo audit.Repository = audit.NewMemoryRepo()
	var db *sql.DB
	if cfg.UsePostgres() {
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		repo := ledger.NewPostgresRepo(db)
		if err := repo.Migrate(rootCtx); err != nil {
			log.Error("ledger migration failed", "err", err)
			os.Exit(1)
		}
		ledgerRepo = repo

		ar := audit.NewPostgresRepo(db)
		if err := ar.Migrate(rootCtx); err != nil {
			log.Error("audit migration failed", "err", err)
			os.Exit(1)
		}
		auditRepo = ar
	} else {
		log.Warn("DB_HOST not set, outcome ledger kept in memory")
	}

	var (
		rdb       *redis.Client
		keyStore  keypress.Store  = keypress.NewMemoryStore()
		snapStore voicemail.Store = voicemail.NewMemoryStore(cfg.Pipeline.SnapshotTTL)
	)
	if cfg.UseRedis() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		keyStore = keypress.NewRedisStore(rdb)
		snapStore = voicemail.NewRedisStore(rdb, cfg.Pipeline.SnapshotTTL)
	} else {
		log.Warn("REDIS_HOST not set, call state kept in memory")
	}

	// Background work outlives the request that started it and is drained
	// after the HTTP server stops.
	bgCtx, cancelBG := context.WithCancel(context.WithoutCancel(rootCtx))
	defer cancelBG()
	bg := utils.NewGroup(bgCtx, logger.Component(log, "background"))

	// Collaborators
	var adapter classifier.Adapter = classifier.HTTPAdapter{
		BaseURL: cfg.Classifier.BaseURL,
		APIKey:  cfg.Classifier.APIKey,
		Model:   cfg.Classifier.Model,
		Client:  &http.Client{Timeout: cfg.Classifier.Timeout},
	}
	if cfg.Classifier.Mock || cfg.Classifier.BaseURL == "" {
		log.Warn("classifier runs on keyword mock")
		adapter = classifier.MockAdapter{}
	}

	var gateway crm.Gateway
	if cfg.CRM.BaseURL != "" {
		gateway = crm.NewHTTPGateway(cfg.CRM.BaseURL, cfg.CRM.Token, cfg.CRM.Timeout)
	} else {
		log.Warn("CRM_BASE_URL not set, outcomes kept in memory gateway")
		gateway = crm.NewMemoryGateway()
	}

	provider := telephony.NewClient(cfg.Telephony.BaseURL, cfg.Telephony.APIKey, cfg.Telephony.Timeout)
	transcriber := speech.NewOpenAITranscriber(cfg.Speech.BaseURL, cfg.Speech.APIKey, cfg.Speech.Model, cfg.Speech.Timeout)

	// Pipeline
	pipelineMetrics := metrics.NewPipeline()
	ledgerSvc := ledger.NewService(ledgerRepo)

	router := &routing.Router{
		Classifier:  classifier.New(adapter, logger.Component(log, "classifier")),
		Summarizer:  classifier.NewSummarizer(adapter),
		Coverage:    coverage.NewHTTPChecker(cfg.Coverage.BaseURL, cfg.Coverage.APIKey, cfg.Coverage.Timeout, cfg.Coverage.PerSecond, cfg.Coverage.Burst),
		CRM:         gateway,
		Ledger:      ledgerSvc,
		Window:      window,
		Metrics:     pipelineMetrics,
		Log:         logger.Component(log, "router"),
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		StaleAfter:  cfg.Pipeline.StaleAfter,
	}

	pipeline := &routing.Pipeline{
		Keypress:  keypress.NewCache(keyStore, cfg.Telephony.DefaultDigit, cfg.Telephony.KeypressTTL, logger.Component(log, "keypress")),
		Snapshots: snapStore,
		Resolver: &voicemail.Resolver{
			Lister:  provider,
			Store:   snapStore,
			Grace:   cfg.Telephony.RecordingGrace,
			Backoff: cfg.Telephony.RecordingBackoff,
			Log:     logger.Component(log, "recordings"),
		},
		Router:            router,
		Extractor:         mailparse.NewExtractor(transcriber, cfg.Pipeline.MinTranscript, logger.Component(log, "mailparse")),
		Ledger:            ledgerSvc,
		Background:        bg,
		Metrics:           pipelineMetrics,
		Log:               logger.Component(log, "pipeline"),
		CorrelationWindow: cfg.Pipeline.CorrelationWindow,
		OrphanGrace:       cfg.Pipeline.OrphanGrace,
	}

	registry := calls.NewRegistry(&calls.BillingGreeter{
		Customers: gateway,
		Speaker:   provider,
		Log:       logger.Component(log, "greeter"),
	}, bg, logger.Component(log, "calls"))
	registry.OnTeardown(func(ctx context.Context, c calls.Call) {
		if _, err := pipeline.HandleConversation(ctx, c); err != nil && !errors.Is(err, routing.ErrDuplicate) {
			log.Error("conversation routing failed", "call_id", c.CallID, "err", err)
		}
	})

	// Metrics
	metricsReg, err := metrics.NewRegistry(pipelineMetrics, metrics.NewCollector(registry, ledgerSvc, time.Now()))
	if err != nil {
		log.Error("metrics init failed", "err", err)
		os.Exit(1)
	}

	// Periodic jobs
	jobs := jobRunner{log: logger.Component(log, "jobs"), rdb: rdb, bg: bg}
	jobs.every("orphan-sweep", cfg.Pipeline.SweepInterval, func(ctx context.Context) (int, error) {
		return pipeline.SweepOrphans(ctx)
	})
	jobs.every("ledger-retry", cfg.Pipeline.RetryInterval, router.RetryFailed)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		Webhooks: &telephony.WebhookHandler{
			Calls:        registry,
			Voicemail:    pipeline,
			Background:   bg,
			Validator:    validator.New(),
			MaxMailBytes: cfg.Pipeline.MaxMailBytes,
		},
		WebhookSecret: cfg.Telephony.WebhookSecret,
		API: httpapi.Handlers{
			Reports: reporting.NewService(ledgerSvc),
			Retrier: router,
			Audit:   audit.NewService(auditRepo),
		},
		AuthMW:  auth.RequireAccessToken(authManager),
		Metrics: metrics.Handler(metricsReg),
		Ready:   readiness(db, rdb),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	jobs.stop()
	drained := make(chan struct{})
	go func() {
		bg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("background work still running at shutdown, cancelling")
		cancelBG()
		<-drained
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// readiness pings the optional backing stores.
func readiness(db *sql.DB, rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		return nil
	}
}
