// Package gcs stores uploaded media and checkpoints in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Config captures the parameters required to address a bucket.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// Prefix is prepended to every object name.
	Prefix string `mapstructure:"prefix"`
}

// Bucket writes and lists objects under a prefix.
type Bucket struct {
	client *storage.Client
	bucket string
	prefix string
}

// New wraps client for cfg.Bucket.
func New(client *storage.Client, cfg Config) (*Bucket, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Bucket{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName joins the configured prefix and name.
func (b *Bucket) ObjectName(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

// URI returns the gs:// location for name.
func (b *Bucket) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s", b.bucket, b.ObjectName(name))
}

// List returns the names under the prefix, relative to it.
func (b *Bucket) List(ctx context.Context) (map[string]int64, error) {
	query := &storage.Query{}
	if b.prefix != "" {
		query.Prefix = b.prefix + "/"
	}
	if err := query.SetAttrSelection([]string{"Name", "Size"}); err != nil {
		return nil, fmt.Errorf("select attrs: %w", err)
	}
	out := make(map[string]int64)
	it := b.client.Bucket(b.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", b.bucket, query.Prefix, err)
		}
		out[strings.TrimPrefix(attrs.Name, query.Prefix)] = attrs.Size
	}
}

// Upload streams r into name and returns its gs:// URI.
func (b *Bucket) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	writer := b.client.Bucket(b.bucket).Object(b.ObjectName(name)).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return b.URI(name), nil
}

// Read returns the full content of name. A missing object yields
// storage.ErrObjectNotExist.
func (b *Bucket) Read(ctx context.Context, name string) ([]byte, error) {
	reader, err := b.client.Bucket(b.bucket).Object(b.ObjectName(name)).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.URI(name), err)
	}
	return data, nil
}
