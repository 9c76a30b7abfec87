package erebus

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Store is Erebus: the blob store holding prediction, baseline and feature files.
// Keys are slash separated.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Open returns a LocalStore rooted at root for kind "local" and an S3Store for kind "s3".
func Open(ctx context.Context, kind, root string, opts S3Options) (Store, error) {
	switch kind {
	case "", "local":
		store, err := NewLocalStore(root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		if opts.Bucket == "" {
			return nil, fmt.Errorf("s3 store needs a bucket")
		}
		store, err := NewS3Store(ctx, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
