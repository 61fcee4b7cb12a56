package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/queue"
	"fleetdocs-backend/internal/shared/storage/db"
	"fleetdocs-backend/internal/telegram"
	"fleetdocs-backend/internal/workerproc"
)

func (c *cli) newReprocessCmd() *cobra.Command {
	var requeue bool
	cmd := &cobra.Command{
		Use:   "reprocess <document-id>...",
		Short: "Run documents through extraction again",
		Long: `Reprocess claims each document and runs it inline, whatever its status,
ignoring the attempt ceiling. With --requeue the document is returned to pending
and handed to the queue, or left for the sweeper when no queue is configured.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := c.buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, id := range args {
				var doc documents.Document
				if requeue {
					doc, err = app.DocumentsService.Requeue(ctx, id)
				} else {
					doc, err = app.DocumentsService.Reprocess(ctx, id)
				}
				if err != nil {
					return fmt.Errorf("reprocess %s: %w", id, err)
				}
				if err := enc.Encode(map[string]any{
					"documentId": doc.ID,
					"status":     doc.Status,
					"attempts":   doc.AttemptCount,
					"errorCode":  doc.ErrorCode,
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&requeue, "requeue", false, "return to pending and enqueue instead of running inline")
	return cmd
}

func (c *cli) newSweepCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Recover stale claims and retry eligible documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if once {
				c.cfg.SweeperEnabled = true
			}
			app, err := c.buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if !once {
				return app.Sweeper.Run(ctx)
			}
			res, err := app.Sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and print its result")
	return cmd
}

func (c *cli) newMigrateCmd() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if c.cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			sqlDB, err := db.Connect(ctx, c.cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer sqlDB.Close()

			if status {
				return db.MigrationStatus(ctx, sqlDB)
			}
			return db.RunMigrations(ctx, sqlDB)
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print migration status instead of applying")
	return cmd
}

func (c *cli) newWorkerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume document tasks from the Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if c.cfg.RedisAddr == "" {
				return fmt.Errorf("REDIS_ADDR is required for the worker")
			}
			app, err := c.buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := workerproc.NewAsynqServer(queue.RedisOpt(c.cfg.RedisAddr, c.cfg.RedisPassword, c.cfg.RedisDB), concurrency)
			return workerproc.RunAsynq(ctx, srv, app.DocumentsService)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", workerproc.DefaultConcurrency, "tasks processed at once")
	return cmd
}

func (c *cli) newTelegramPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telegram-poll",
		Short: "Receive chat-bot updates with getUpdates instead of the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if c.cfg.TelegramBotToken == "" {
				return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
			}
			app, err := c.buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			poller := &telegram.Poller{Source: app.Telegram, Intake: app.TelegramIntake}
			return poller.Run(ctx)
		},
	}
}
