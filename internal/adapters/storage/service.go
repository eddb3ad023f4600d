// Package storage archives raw lead submissions in S3-compatible object storage.
package storage

import (
	"context"
)

// Archive stores immutable documents by key.
type Archive interface {
	// Put writes body under key. Existing objects are overwritten.
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketRawPayloads() string
	IsMinIOEnabled() bool
}
