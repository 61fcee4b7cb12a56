package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/extraction"
	openaiextract "fleetdocs-backend/internal/extraction/openai"
	vertexextract "fleetdocs-backend/internal/extraction/vertex"
	"fleetdocs-backend/internal/normalize"
	"fleetdocs-backend/internal/queue"
	"fleetdocs-backend/internal/reminders"
	"fleetdocs-backend/internal/shared/config"
	"fleetdocs-backend/internal/shared/server"
	"fleetdocs-backend/internal/shared/storage/db"
	"fleetdocs-backend/internal/shared/storage/object"
	localstore "fleetdocs-backend/internal/shared/storage/object/local"
	miniostore "fleetdocs-backend/internal/shared/storage/object/minio"
	s3store "fleetdocs-backend/internal/shared/storage/object/s3"
	"fleetdocs-backend/internal/shared/telemetry"
	"fleetdocs-backend/internal/sweeper"
	"fleetdocs-backend/internal/telegram"
)

const (
	extractionRetryAttempts = 3
	extractionRetryDelay    = 2 * time.Second
)

// App holds shared dependencies for every binary.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Redis            redis.UniversalClient
	Store            object.ObjectStore
	Queue            queue.Client
	Extractor        extraction.Extractor
	Normalizer       *normalize.Normalizer
	DocumentsRepo    documents.Repo
	RemindersRepo    reminders.Repo
	DocumentsService *documents.Service
	RemindersService *reminders.Service
	Sweeper          *sweeper.Sweeper
	Telegram         *telegram.Client
	TelegramIntake   *telegram.Intake

	closers []io.Closer
}

// Options tweaks Build for a particular binary.
type Options struct {
	DBOptions db.Options
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	return BuildWith(context.Background(), cfg, Options{})
}

// BuildWith is Build with a caller context and per-binary options.
func BuildWith(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	cfg = config.WithDefaults(cfg)
	telemetry.Configure(nil, cfg.LogFormat, cfg.LogLevel)

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.closers = append(app.closers, sqlDB)
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		app.Redis = rdb
		app.closers = append(app.closers, rdb)
	}

	if app.Store, err = buildStore(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	if app.Extractor, err = buildExtractor(ctx, cfg, app); err != nil {
		app.Close()
		return nil, err
	}
	if app.Normalizer, err = normalize.NewDefault(cfg.NormalizerSchemaPath); err != nil {
		app.Close()
		return nil, fmt.Errorf("load normalizer schemas: %w", err)
	}
	if app.Queue, err = buildQueue(ctx, cfg, app); err != nil {
		app.Close()
		return nil, err
	}
	if err := buildServices(app); err != nil {
		app.Close()
		return nil, err
	}
	if err := buildTelegram(app); err != nil {
		app.Close()
		return nil, err
	}

	deps := server.RouterDeps{
		Config:          cfg,
		DocumentHandler: documents.NewHandler(app.DocumentsService),
		ReminderHandler: reminders.NewHandler(app.RemindersService),
		Health:          app.health,
	}
	if app.TelegramIntake != nil {
		deps.TelegramHandler = telegram.NewWebhookHandler(app.TelegramIntake, cfg.TelegramWebhookSecret)
	}
	app.Router = server.NewRouter(deps)

	return app, nil
}

// Close releases connections opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			telemetry.Warn("bootstrap.close_failed", map[string]any{"error": err.Error()})
		}
	}
	a.closers = nil
}

func (a *App) health() error {
	if a.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.DB.PingContext(ctx)
}

func buildDB(ctx context.Context, cfg config.Config, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	dbOpts := opts.DBOptions
	if dbOpts == (db.Options{}) {
		dbOpts = db.DefaultServerOptions()
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(dbOpts))
	if err != nil {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		store, err := miniostore.New(miniostore.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Region:    cfg.AWSRegion,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildExtractor(ctx context.Context, cfg config.Config, app *App) (extraction.Extractor, error) {
	var base extraction.Extractor
	switch cfg.ExtractionProvider {
	case "openai":
		client, err := openaiextract.NewClient(cfg.OpenAIAPIKey, cfg.ExtractionModel, cfg.ExtractionTimeout)
		if err != nil {
			return nil, err
		}
		base = client
	case "vertex":
		client, err := vertexextract.NewClient(ctx, cfg.VertexProjectID, cfg.VertexRegion, cfg.ExtractionModel)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client)
		base = client
	default:
		if !config.IsDevLike(cfg.Env) {
			return nil, fmt.Errorf("EXTRACTION_PROVIDER=stub is only allowed in dev")
		}
		base = extraction.NewDevStub()
	}

	ex := extraction.WithTimeout(base, cfg.ExtractionTimeout)
	ex = extraction.WithRetry(ex, extractionRetryAttempts, extractionRetryDelay)
	return extraction.Instrument(ex, cfg.ExtractionProvider), nil
}

func buildQueue(ctx context.Context, cfg config.Config, app *App) (queue.Client, error) {
	switch cfg.QueueBackend {
	case "sqs":
		return queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
	case "asynq":
		client, err := queue.NewAsynqClient(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cfg.ExtractionTimeout*2)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client)
		return client, nil
	default:
		return nil, nil
	}
}

func buildServices(app *App) error {
	if app.DB != nil {
		app.DocumentsRepo = &documents.PGRepo{DB: app.DB}
		app.RemindersRepo = &reminders.PGRepo{DB: app.DB}
	} else {
		app.DocumentsRepo = documents.NewMemoryRepo()
		app.RemindersRepo = reminders.NewMemoryRepo()
	}

	app.RemindersService = reminders.NewService(app.RemindersRepo)
	app.DocumentsService = &documents.Service{
		Repo:           app.DocumentsRepo,
		Store:          app.Store,
		Extractor:      app.Extractor,
		Normalizer:     app.Normalizer,
		Queue:          app.Queue,
		Reminders:      app.RemindersService,
		MaxUploadBytes: app.Config.MaxUploadBytes,
		DefaultMode:    documents.ParseMode(app.Config.IntakeMode),
	}

	app.Sweeper = sweeper.New(app.DocumentsService, app.RemindersService, sweeper.ConfigFrom(app.Config))
	return nil
}

func buildTelegram(app *App) error {
	token := strings.TrimSpace(app.Config.TelegramBotToken)
	if token == "" {
		return nil
	}
	client, err := telegram.NewClient(token)
	if err != nil {
		return err
	}

	var dedup telegram.Deduper
	if app.Redis != nil {
		dedup = telegram.NewRedisDeduper(app.Redis, 0)
	} else {
		dedup = telegram.NewMemoryDeduper(0)
	}

	app.Telegram = client
	app.TelegramIntake = &telegram.Intake{
		Docs:     app.DocumentsService,
		Bot:      client,
		Dedup:    dedup,
		MaxBytes: app.Config.MaxUploadBytes,
	}
	return nil
}
