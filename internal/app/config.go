package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/ent0n29/docvoice/internal/config"
	"github.com/ent0n29/docvoice/internal/paramstore"
)

// LoadConfig reads the environment and, when PARAM_PREFIX is set, fills the
// missing secrets from SSM Parameter Store before validating.
func LoadConfig(ctx context.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return config.Config{}, fmt.Errorf("aws config init failed: %w", err)
		}
		params, err := paramstore.New(ssm.NewFromConfig(awsCfg))
		if err != nil {
			return config.Config{}, err
		}
		cfg, err = config.ResolveSecrets(ctx, cfg, params)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// NewLogger returns the process-wide JSON logger.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
