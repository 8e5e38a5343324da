package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// objectClient is the subset of *minio.Client used here.
type objectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type ObjectStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the scheme://host used in returned URLs, for
	// buckets fronted by a CDN or reverse proxy.
	PublicURL string
}

// ObjectStorage stores files in an S3-compatible bucket under
// <Folder>/<generated name>. The backend, not the caller, decides the URL.
type ObjectStorage struct {
	client  objectClient
	bucket  string
	baseURL string
	now     func() time.Time
}

// NewObjectStorage connects to the bucket and creates it if missing.
func NewObjectStorage(ctx context.Context, cfg ObjectStorageConfig) (*ObjectStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Log.Info("Created object storage bucket", zap.String("bucket", cfg.Bucket))
	}

	base := cfg.PublicURL
	if base == "" {
		base = client.EndpointURL().String()
	}

	return newObjectStorage(client, cfg.Bucket, base), nil
}

func newObjectStorage(client objectClient, bucket, baseURL string) *ObjectStorage {
	return &ObjectStorage{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

func (s *ObjectStorage) Name() string { return "minio" }

func (s *ObjectStorage) Save(ctx context.Context, kind UploadKind, file File) (Object, error) {
	dest, err := kind.Destination()
	if err != nil {
		return Object{}, err
	}

	key := dest.Folder + "/" + newFilename(s.now(), file.Name)

	contentType := file.ContentType
	if contentType == "" {
		contentType = dest.DefaultContentType
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, file.Body, file.Size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"resource-type": dest.ResourceType,
		},
	})
	if err != nil {
		return Object{}, fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}

	logger.Log.Debug("Stored file in object storage",
		zap.String("kind", kind.String()),
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int64("bytes", info.Size),
	)

	return Object{
		Kind: kind,
		Key:  key,
		URL:  s.objectURL(key),
	}, nil
}

func (s *ObjectStorage) Delete(ctx context.Context, obj Object) error {
	return s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{})
}

func (s *ObjectStorage) objectURL(key string) string {
	return s.baseURL + "/" + url.PathEscape(s.bucket) + "/" + key
}
