// Package gcs stores backups as objects in a Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"findash/internal/backup"
	"findash/internal/backup/googleopts"
	applog "findash/internal/log"
)

const Kind = "gcs"

// Sink keeps one object per backup under prefix. Object names double as
// blob ids.
type Sink struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// New opens a storage client for bucket.
func New(ctx context.Context, bucket, prefix string, creds googleopts.Credentials, logger *slog.Logger) (*Sink, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := creds.ClientOptions(storage.ScopeReadWrite)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	logger.InfoContext(ctx, "GCS backup sink ready", "bucket", bucket, "prefix", prefix, "credentials", creds.Source())
	return &Sink{client: client, bucket: bucket, prefix: normalizePrefix(prefix), logger: logger}, nil
}

func (s *Sink) Kind() string { return Kind }

func (s *Sink) Close() error { return s.client.Close() }

func (s *Sink) List(ctx context.Context) ([]backup.BlobInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	out := []backup.BlobInfo{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects in %s: %w", s.bucket, err)
		}
		if info, ok := blobInfo(attrs, s.prefix); ok {
			out = append(out, info)
		}
	}
	backup.SortNewestFirst(out)
	return out, nil
}

func (s *Sink) Create(ctx context.Context, name string, payload []byte) (backup.CreateResult, error) {
	object := objectName(s.prefix, name)
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, bytes.NewReader(payload)); err != nil {
		_ = w.Close()
		return backup.CreateResult{}, fmt.Errorf("write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return backup.CreateResult{}, fmt.Errorf("close object %s: %w", object, err)
	}
	s.logger.DebugContext(ctx, "Backup uploaded", applog.FieldSink, Kind, "object", object, "bytes", len(payload))
	return backup.CreateResult{ID: object, Name: name}, nil
}

func (s *Sink) Fetch(ctx context.Context, name string) ([]byte, error) {
	object := objectName(s.prefix, name)
	r, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", backup.ErrBlobNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", object, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", object, err)
	}
	return data, nil
}

func (s *Sink) Delete(ctx context.Context, id string) error {
	err := s.client.Bucket(s.bucket).Object(id).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", backup.ErrBlobNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}

func normalizePrefix(prefix string) string {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func objectName(prefix, name string) string {
	return prefix + path.Base(name)
}

// blobInfo converts listed attributes, skipping folder placeholders and
// anything that is not a backup file.
func blobInfo(attrs *storage.ObjectAttrs, prefix string) (backup.BlobInfo, bool) {
	name := strings.TrimPrefix(attrs.Name, prefix)
	if name == "" || strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
		return backup.BlobInfo{}, false
	}
	ts := attrs.Created
	if ts.IsZero() {
		ts = attrs.Updated
	}
	return backup.BlobInfo{
		ID:        attrs.Name,
		Name:      name,
		Timestamp: ts.UnixMilli(),
		Size:      attrs.Size,
	}, true
}

var _ backup.Sink = (*Sink)(nil)
