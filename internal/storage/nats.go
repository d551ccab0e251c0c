package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore keeps uploads in a NATS JetStream object store bucket. Returned
// URLs have the form nats://<bucket>/<key> and are resolved by the worker
// through the same bucket.
type NatsStore struct {
	bucket string
	prefix string
	store  nats.ObjectStore
}

// NewNatsStore creates the bucket, or binds to it when it already exists.
func NewNatsStore(js nats.JetStreamContext, bucket, prefix string) (*NatsStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Intake uploads for the %s bucket.", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("storage: create object store bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("storage: bind object store bucket %q: %w", bucket, err)
		}
	}
	return &NatsStore{bucket: bucket, prefix: prefix, store: store}, nil
}

func (n *NatsStore) Upload(_ context.Context, data []byte, name string, kind Kind) (Object, error) {
	if len(data) == 0 {
		return Object{}, ErrEmptyData
	}
	key := ObjectKey(n.prefix, kind, name)
	if _, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data)); err != nil {
		return Object{}, fmt.Errorf("storage: put object %q to bucket %q: %w", key, n.bucket, err)
	}
	return Object{Key: key, URL: "nats://" + n.bucket + "/" + key}, nil
}

func (n *NatsStore) Delete(_ context.Context, key string) error {
	if err := n.store.Delete(key); err != nil {
		return fmt.Errorf("storage: delete object %q from bucket %q: %w", key, n.bucket, err)
	}
	return nil
}

// Download reads an object back; the worker side uses the same call.
func (n *NatsStore) Download(_ context.Context, key string) ([]byte, error) {
	data, err := n.store.GetBytes(key)
	if err != nil {
		return nil, fmt.Errorf("storage: get object %q from bucket %q: %w", key, n.bucket, err)
	}
	return data, nil
}
