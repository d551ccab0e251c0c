package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nats-io/nats.go"

	"github.com/ent0n29/docvoice/internal/catalog"
	"github.com/ent0n29/docvoice/internal/config"
	"github.com/ent0n29/docvoice/internal/httpapi"
	"github.com/ent0n29/docvoice/internal/intake"
	"github.com/ent0n29/docvoice/internal/jobs"
	"github.com/ent0n29/docvoice/internal/observability"
	"github.com/ent0n29/docvoice/internal/session"
	"github.com/ent0n29/docvoice/internal/storage"
	"github.com/ent0n29/docvoice/internal/telegram"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Webhook  *telegram.Webhook
	Engine   *intake.Engine
	Sessions *session.Manager
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB pool, NATS connection).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	cat, err := catalog.LoadFile(cfg.VoiceCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("voice catalog init failed: %w", err)
	}

	var awsCfg aws.Config
	if cfg.StorageBackend == storage.BackendS3 || jobs.ResolveBackend(cfg.JobStore, cfg.DatabaseURL) == jobs.BackendDynamoDB {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config init failed: %w", err)
		}
	}

	var closers []func() error
	cleanup := func() error {
		var errs []string
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	storeOpts := storage.Options{
		Backend:    cfg.StorageBackend,
		Prefix:     cfg.StoragePrefix,
		NATSBucket: cfg.NATSBucket,
		S3: storage.S3Config{
			Bucket:        cfg.S3Bucket,
			Region:        firstNonEmpty(cfg.S3Region, awsCfg.Region),
			PublicBaseURL: cfg.S3PublicBaseURL,
		},
	}
	switch cfg.StorageBackend {
	case storage.BackendS3:
		storeOpts.S3API = s3.NewFromConfig(awsCfg)
	case storage.BackendNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("docvoice"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("nats connect failed: %w", err)
		}
		closers = append(closers, func() error { nc.Close(); return nil })
		js, err := nc.JetStream()
		if err != nil {
			_ = cleanup()
			return nil, fmt.Errorf("nats jetstream init failed: %w", err)
		}
		storeOpts.JetStream = js
	}
	objects, err := storage.NewStore(storeOpts)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("object store init failed: %w", err)
	}

	jobOpts := jobs.Options{
		Backend:     cfg.JobStore,
		DatabaseURL: cfg.DatabaseURL,
		Tables:      jobs.Tables{StandardTTS: cfg.JobsTTSTable, VoiceClone: cfg.JobsCloneTable},
	}
	if jobs.ResolveBackend(cfg.JobStore, cfg.DatabaseURL) == jobs.BackendDynamoDB {
		jobOpts.Dynamo = dynamodb.NewFromConfig(awsCfg)
	}
	jobStore, err := jobs.NewStore(ctx, jobOpts)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("job store init failed: %w", err)
	}
	closers = append(closers, jobStore.Close)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.ObserveSessionEvent(string(s.Flow), "expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
		logger.Info("intake session expired", "user_id", s.UserID, "flow", s.Flow, "state", s.State.String())
	})

	bot := &telegram.Client{
		Token:        cfg.TelegramBotToken,
		BaseURL:      cfg.TelegramAPIBaseURL,
		HTTP:         &http.Client{Timeout: cfg.IOTimeout},
		MaxFileBytes: cfg.TelegramMaxFileBytes,
	}

	engineOpts := []intake.Option{
		intake.WithMetrics(metrics),
		intake.WithLogger(logger),
		intake.WithIOTimeout(cfg.IOTimeout),
		intake.WithRecordVoiceChoice(cfg.JobsRecordVoiceChoice),
	}
	if cfg.JobsOnPersistFailure == config.PersistFailureDeleteUpload {
		engineOpts = append(engineOpts, intake.WithPersistFailureHook(intake.DeleteOrphanedUpload(objects, logger)))
	}
	engine, err := intake.NewEngine(sessions, cat, bot, objects, jobStore, engineOpts...)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("intake engine init failed: %w", err)
	}

	webhook := &telegram.Webhook{
		Secret:     cfg.TelegramWebhookSecret,
		Dispatcher: engine,
		Metrics:    metrics,
		Logger:     logger,
	}
	api := httpapi.New(cfg, sessions, webhook, cat, metrics, logger)

	logger.Info("docvoice assembled",
		"storage_backend", cfg.StorageBackend,
		"job_store", jobs.ResolveBackend(cfg.JobStore, cfg.DatabaseURL),
		"persist_failure_policy", cfg.JobsOnPersistFailure,
	)

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Webhook:  webhook,
		Engine:   engine,
		Sessions: sessions,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
