package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/config"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/handlers"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/llm"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/logging"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/middleware"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("ai_provider", cfg.AI.Provider))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations run on a plain database/sql handle; the pool below is pgx.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable; grounding cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	completionClient, err := llm.NewCompletionClient(&cfg.AI, logger.Named("llm"))
	if err != nil {
		logger.Fatal("Failed to create completion client", zap.Error(err))
	}
	embedder, err := llm.NewEmbedder(&cfg.AI, logger.Named("embeddings"))
	if err != nil {
		logger.Fatal("Failed to create embedding client", zap.Error(err))
	}

	// Repositories
	draftRepo := repositories.NewDraftRepository()
	conversationRepo := repositories.NewConversationRepository()
	decisionRepo := repositories.NewDecisionRepository()
	entityDraftRepo := repositories.NewEntityDraftRepository()
	auditRepo := repositories.NewAuditRepository()
	campaignRepo := repositories.NewCampaignRepository()
	referenceRepo := repositories.NewReferenceRepository()

	// Services. The acceptance service is the only holder of the
	// campaign writer; everything else reads canonical state.
	txManager := database.NewTxManager()
	acceptanceService := services.NewAcceptanceService(&services.AcceptanceServiceDeps{
		EntityDraftRepo: entityDraftRepo,
		AuditRepo:       auditRepo,
		CampaignRepo:    campaignRepo,
		Writer:          services.NewCampaignWriter(campaignRepo),
		TxManager:       txManager,
		Logger:          logger.Named("acceptance"),
	})
	campaignService := services.NewCampaignService(&services.CampaignServiceDeps{
		CampaignRepo: campaignRepo,
		Logger:       logger.Named("campaigns"),
	})
	draftService := services.NewDraftService(&services.DraftServiceDeps{
		DraftRepo:    draftRepo,
		CampaignRepo: campaignRepo,
		Acceptance:   acceptanceService,
		Logger:       logger.Named("drafts"),
	})
	ledgerService := services.NewLedgerService(&services.LedgerServiceDeps{
		ConversationRepo: conversationRepo,
		DecisionRepo:     decisionRepo,
		Logger:           logger.Named("ledger"),
	})
	groundingService := services.NewGroundingService(&services.GroundingServiceDeps{
		ReferenceRepo: referenceRepo,
		Embedder:      embedder,
		Cache:         redisClient,
		Config:        cfg.Grounding,
		Logger:        logger.Named("grounding"),
	})
	trustService := services.NewTrustService(&services.TrustServiceDeps{
		Logger: logger.Named("trust"),
	})
	generationService := services.NewGenerationService(&services.GenerationServiceDeps{
		Completion:    completionClient,
		Grounding:     groundingService,
		Trust:         trustService,
		DraftRepo:     draftRepo,
		CampaignRepo:  campaignRepo,
		Ledger:        ledgerService,
		ReferenceRepo: referenceRepo,
		Config:        cfg.Generation,
		Logger:        logger.Named("generation"),
	})

	// HTTP surface
	mux := http.NewServeMux()
	scope := middleware.WithScope(db, logger)
	campaignScope := middleware.WithCampaignScope(db, logger)

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDraftsHandler(draftService, logger).RegisterRoutes(mux, scope)
	handlers.NewConversationsHandler(ledgerService, generationService, draftService, logger).RegisterRoutes(mux, scope)
	handlers.NewGenerationHandler(generationService, acceptanceService, logger).RegisterRoutes(mux, scope, campaignScope)
	handlers.NewCampaignsHandler(campaignService, acceptanceService, logger).RegisterRoutes(mux, scope, campaignScope)
	handlers.NewAcceptanceHandler(acceptanceService, logger).RegisterRoutes(mux, scope, campaignScope)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting campaign pipeline server",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}
