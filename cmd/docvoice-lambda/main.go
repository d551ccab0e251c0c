package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/ent0n29/docvoice/internal/app"
	"github.com/ent0n29/docvoice/internal/lambdaapi"
)

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	// Sessions live in this execution environment's memory; they survive only
	// while it stays warm.
	built.Sessions.StartJanitor(ctx, cfg.JanitorInterval)

	h, err := lambdaapi.NewHandler(built.Webhook, logger)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
