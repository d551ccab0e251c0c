package jobs

import (
	"context"
	"fmt"
	"strings"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend     string
	DatabaseURL string
	Tables      Tables
	// Dynamo is required for BackendDynamoDB.
	Dynamo dynamodbAPI
}

// ResolveBackend picks postgres when a database URL is configured and no
// backend is named, otherwise in-memory.
func ResolveBackend(backend, databaseURL string) string {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend != "" {
		return backend
	}
	if strings.TrimSpace(databaseURL) != "" {
		return BackendPostgres
	}
	return BackendMemory
}

func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch ResolveBackend(opts.Backend, opts.DatabaseURL) {
	case BackendMemory:
		return NewInMemoryStore(), nil
	case BackendPostgres:
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("jobs: postgres backend requires a database url")
		}
		return NewPostgresStore(ctx, opts.DatabaseURL, opts.Tables)
	case BackendDynamoDB:
		return NewDynamoStore(opts.Dynamo, opts.Tables)
	default:
		return nil, fmt.Errorf("jobs: unknown backend %q (expected memory|postgres|dynamodb)", opts.Backend)
	}
}
