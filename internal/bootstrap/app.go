package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dispute-backend/internal/analysis"
	"dispute-backend/internal/cases"
	"dispute-backend/internal/documents"
	"dispute-backend/internal/mindstudio"
	"dispute-backend/internal/queue"
	"dispute-backend/internal/quota"
	"dispute-backend/internal/shared/config"
	"dispute-backend/internal/shared/server"
	"dispute-backend/internal/shared/storage/db"
	"dispute-backend/internal/shared/storage/object"
	localstore "dispute-backend/internal/shared/storage/object/local"
	s3store "dispute-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies for the API server and the worker process.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	CasesRepo     cases.Repo
	DocumentsRepo documents.Repo
	AnalysisRepo  analysis.Repo
	ThreadStore   mindstudio.ThreadStore

	CasesService     *cases.Service
	DocumentsService *documents.Service
	AnalysisService  *analysis.Service
	QuotaService     *quota.Service

	// AnalysisProcessor allows tests to stub out queue-job processing.
	AnalysisProcessor AnalysisProcessor

	CasesHandler      *cases.Handler
	DocumentsHandler  *documents.Handler
	AnalysisHandler   *analysis.Handler
	MindStudioHandler *mindstudio.Handler
	QuotaHandler      *quota.Handler
}

// AnalysisProcessor executes enqueued analysis requests.
type AnalysisProcessor interface {
	ProcessRequest(ctx context.Context, requestID string) error
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            app.Config,
		CasesHandler:      app.CasesHandler,
		DocumentsHandler:  app.DocumentsHandler,
		AnalysisHandler:   app.AnalysisHandler,
		MindStudioHandler: app.MindStudioHandler,
		QuotaHandler:      app.QuotaHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("DISPUTE_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	cfg := app.Config

	var caseRepo cases.Repo
	var docRepo documents.Repo
	var analysisRepo analysis.Repo
	if app.DB != nil {
		caseRepo = &cases.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		analysisRepo = &analysis.PGRepo{DB: app.DB}
	} else {
		caseRepo = cases.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo()
		analysisRepo = analysis.NewMemoryRepo()
	}

	var quotaSvc *quota.Service
	quotaWindow := time.Duration(cfg.ExtractQuotaWindowSeconds) * time.Second
	if app.DB != nil {
		quotaSvc = quota.NewPostgresService(quota.NewPGStore(app.DB), cfg.ExtractQuotaLimit, quotaWindow)
	} else {
		quotaSvc = quota.NewService(cfg.ExtractQuotaLimit, quotaWindow)
	}

	caseSvc := cases.NewService(caseRepo)
	docSvc := &documents.Service{
		Store:           app.Store,
		Repo:            docRepo,
		Cases:           caseSvc,
		StorageProvider: cfg.ObjectStoreType,
	}

	var worker mindstudio.Dispatcher
	if strings.TrimSpace(cfg.MindStudioAPIKey) != "" {
		client, err := mindstudio.NewClient(cfg.MindStudioAPIKey)
		if err != nil {
			return err
		}
		worker = client
	} else {
		if !isDevLike(cfg.Env) {
			return fmt.Errorf("MINDSTUDIO_API_KEY is required")
		}
		log.Printf("bootstrap: MINDSTUDIO_API_KEY empty; analysis dispatch will fail until configured")
	}

	threads := mindstudio.NewMemoryThreadStore()

	callbackURL := ""
	if cfg.CallbackBaseURL != "" {
		callbackURL = cfg.CallbackBaseURL + "/api/v1/mindstudio/callback"
	}

	analysisSvc := &analysis.Service{
		Repo:        analysisRepo,
		Cases:       caseSvc,
		Docs:        docSvc,
		Worker:      worker,
		Threads:     threads,
		Queue:       app.Queue,
		Quota:       quotaSvc,
		WorkerID:    cfg.MindStudioWorkerID,
		CallbackURL: callbackURL,
		Limiter: analysis.NewLimiter(
			cfg.AnalysisRateLimit,
			time.Duration(cfg.AnalysisRateWindowSeconds)*time.Second,
			nil,
		),
	}

	app.CasesRepo = caseRepo
	app.DocumentsRepo = docRepo
	app.AnalysisRepo = analysisRepo
	app.ThreadStore = threads
	app.CasesService = caseSvc
	app.DocumentsService = docSvc
	app.AnalysisService = analysisSvc
	app.QuotaService = quotaSvc
	app.AnalysisProcessor = analysisSvc
	app.CasesHandler = cases.NewHandler(caseSvc)
	app.DocumentsHandler = documents.NewHandler(docSvc, caseRepo)
	app.AnalysisHandler = analysis.NewHandler(analysisSvc)
	app.MindStudioHandler = mindstudio.NewHandler(threads)
	app.QuotaHandler = quota.NewHandler(quotaSvc)

	return nil
}
