package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"fleetdocs-backend/internal/bootstrap"
	"fleetdocs-backend/internal/queue"
	"fleetdocs-backend/internal/shared/config"
	"fleetdocs-backend/internal/shared/storage/db"
	"fleetdocs-backend/internal/workerproc"
)

const defaultSQSRegion = "eu-west-1"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := envInt("WORKER_CONCURRENCY", workerproc.DefaultConcurrency)
	app, err := bootstrap.BuildWith(ctx, cfg, bootstrap.Options{DBOptions: db.DefaultWorkerOptions(concurrency)})
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	switch cfg.QueueBackend {
	case "asynq":
		srv := workerproc.NewAsynqServer(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), concurrency)
		if err := workerproc.RunAsynq(ctx, srv, app.DocumentsService); err != nil {
			log.Fatalf("asynq worker: %v", err)
		}
	case "sqs":
		queueURL := strings.TrimSpace(cfg.SQSQueueURL)
		if queueURL == "" {
			log.Fatal("SQS_QUEUE_URL is required")
		}
		region := cfg.AWSRegion
		if region == "" {
			region = defaultSQSRegion
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			log.Fatalf("load aws config: %v", err)
		}
		consumer := &workerproc.SQSConsumer{
			Client:            sqs.NewFromConfig(awsCfg),
			QueueURL:          queueURL,
			Processor:         app.DocumentsService,
			Concurrency:       concurrency,
			VisibilitySeconds: envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", workerproc.DefaultVisibilitySeconds),
			ShutdownTimeout:   time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		}
		consumer.Run(ctx)
	default:
		log.Fatalf("QUEUE_BACKEND must be sqs or asynq for the worker, got %q", cfg.QueueBackend)
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
