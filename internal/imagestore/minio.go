// Package imagestore uploads message images to S3-compatible object
// storage. Uploads happen only after the image has passed moderation.
package imagestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // base URL the stored objects resolve under
}

// Store uploads images to a minio/S3 bucket and returns resolvable URLs.
type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewStore creates an image store for the configured bucket.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("imagestore: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("imagestore: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("imagestore: create client: %w", err)
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Upload decodes the client-submitted payload (a base64 string, optionally
// wrapped in a data URI) and stores it under a fresh object key. The
// returned URL is what gets persisted on the message.
func (s *Store) Upload(ctx context.Context, data string) (string, error) {
	raw, contentType, err := decodePayload(data)
	if err != nil {
		return "", fmt.Errorf("imagestore: decode payload: %w", err)
	}

	key := "dm/" + uuid.New().String()
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(raw), int64(len(raw)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("imagestore: put object %s: %w", key, err)
	}

	return s.publicURL + "/" + key, nil
}

// decodePayload accepts either a bare base64 string or a data URI
// (data:image/png;base64,....) and returns the raw bytes plus content type.
func decodePayload(data string) ([]byte, string, error) {
	contentType := "application/octet-stream"
	encoded := data

	if strings.HasPrefix(data, "data:") {
		header, rest, ok := strings.Cut(data, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		encoded = rest
		header = strings.TrimPrefix(header, "data:")
		if mime, _, found := strings.Cut(header, ";"); found && mime != "" {
			contentType = mime
		}
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64: %w", err)
	}
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("empty image payload")
	}
	return raw, contentType, nil
}
