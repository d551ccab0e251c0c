package storage

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

const (
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendNATS   = "nats"
)

type Options struct {
	Backend string
	Prefix  string
	S3      S3Config
	// S3API is required for BackendS3.
	S3API s3API
	// JetStream and NATSBucket are required for BackendNATS.
	JetStream  nats.JetStreamContext
	NATSBucket string
}

func NewStore(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewInMemoryStore(opts.Prefix), nil
	case BackendS3:
		cfg := opts.S3
		cfg.Prefix = opts.Prefix
		return NewS3Store(opts.S3API, cfg)
	case BackendNATS:
		if opts.JetStream == nil {
			return nil, fmt.Errorf("storage: nats backend requires a jetstream context")
		}
		return NewNatsStore(opts.JetStream, opts.NATSBucket, opts.Prefix)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q (expected memory|s3|nats)", opts.Backend)
	}
}
