package storage

import (
	"bytes"
	"context"
	"io"
	"iter"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/internal/config"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = eris.New("storage: object not found")

// Store is a bucket on an S3 compatible server.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the configured server and checks that the bucket exists.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("storage: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "storage: create client")
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: check bucket %s", cfg.Bucket)
	}
	if !exists {
		return nil, eris.Errorf("storage: bucket %s does not exist", cfg.Bucket)
	}

	zap.L().Info("storage: connected",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
	)
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Location describes prefix for humans, e.g. s3://bucket/prefix.
func (s *Store) Location(prefix string) string {
	return "s3://" + s.bucket + "/" + prefix
}

// ListKeys yields every key under prefix in lexical order. Breaking out of
// the loop stops the listing.
func (s *Store) ListKeys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		})
		for obj := range objects {
			if obj.Err != nil {
				yield("", eris.Wrapf(obj.Err, "storage: list %s", s.Location(prefix)))
				return
			}
			if !yield(obj.Key, nil) {
				return
			}
		}
	}
}

// GetObject reads a whole object.
func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapGet(err, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrapGet(err, key)
	}
	return data, nil
}

func (s *Store) wrapGet(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return eris.Wrapf(ErrNotFound, "storage: get %s", key)
	}
	return eris.Wrapf(err, "storage: get %s", key)
}

// PutObject writes body under key and returns the bucket qualified path.
func (s *Store) PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", eris.Wrapf(err, "storage: put %s", key)
	}
	return s.bucket + "/" + key, nil
}

// PresignedURL returns a time limited GET link for key. A leading bucket
// segment is tolerated.
func (s *Store) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	key = strings.TrimPrefix(key, s.bucket+"/")
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", eris.Wrapf(err, "storage: presign %s", key)
	}
	return u.String(), nil
}

// ContentTypeFor picks the content type of an artifact from its extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
