// Package storage is the voice worker's storage client: upload/download/
// delete generated audio blobs against an HTTP object store, with a local
// filesystem fallback and an S3-compatible alternate backend behind the
// same port.
package storage

import (
	"context"
	"io"
)

// Info describes a stored object's metadata as reported by the object
// store's /info endpoint.
type Info struct {
	Bucket string
	Key    string
	Size   int64
}

// Backend defines the object-store operations the voice worker needs:
// upload/download/delete/info plus a liveness probe. HTTPBackend is the
// primary implementation against the §6 HTTP object store; LocalBackend and
// S3Backend are alternates behind the same port.
type Backend interface {
	// Upload stores data under bucket/key and returns the canonical
	// location identifier ("{bucket}/{key}" for the HTTP store).
	Upload(ctx context.Context, bucket, key string, data io.Reader) (location string, err error)

	// Download retrieves bucket/key. The caller must close the returned
	// ReadCloser.
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Delete removes bucket/key.
	Delete(ctx context.Context, bucket, key string) error

	// Info returns metadata for bucket/key.
	Info(ctx context.Context, bucket, key string) (Info, error)

	// Health probes the backend's liveness.
	Health(ctx context.Context) error
}
