// Package objectstore keeps finished tracks in a NATS JetStream object store.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	errFmtBindBucket   = "failed to bind to existing object store bucket '%s': %w"
	errFmtCreateBucket = "failed to create object store bucket '%s': %w"
	errFmtGet          = "failed to get object '%s' from bucket '%s': %w"
	errFmtRead         = "failed to read object '%s': %w"
	errFmtClose        = "failed to close object '%s': %w"
	errFmtPut          = "failed to put object '%s' to bucket '%s': %w"
	errFmtOpenFile     = "failed to open %s for upload: %w"
	bucketDescription  = "Generated tracks and stems."
)

// NatsObjectStore implements core.ObjectStore on a JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to bucketName, creating it when it does not exist yet.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: bucketDescription,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf(errFmtCreateBucket, bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf(errFmtBindBucket, bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Download retrieves an object.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf(errFmtGet, key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf(errFmtRead, key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf(errFmtClose, key, closeErr)
	}

	return data, nil
}

// Upload streams data into the object named key, replacing any previous version.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data io.Reader) error {
	_, err := n.store.Put(&nats.ObjectMeta{Name: key}, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf(errFmtPut, key, n.bucket, err)
	}

	return nil
}

// UploadFile uploads the file at path under key.
func (n *NatsObjectStore) UploadFile(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf(errFmtOpenFile, path, err)
	}
	defer file.Close()

	return n.Upload(ctx, key, file)
}
