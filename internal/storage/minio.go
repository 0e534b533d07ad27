package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/booktalk/backend/internal/config"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient stores photos in one bucket whose objects are publicly
// readable, so stored photos can be linked directly from the API.
type MinIOClient struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinIOClient(cfg config.StorageConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	return &MinIOClient{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
	}, nil
}

func (m *MinIOClient) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000",
	})
	details := map[string]interface{}{
		"object_name":  objectName,
		"size":         size,
		"content_type": contentType,
		"bucket":       m.bucket,
	}
	if err != nil {
		logger.Error("minio_upload_failed", err, details)
	} else {
		logger.Info("minio_upload_success", details)
	}
	return err
}

func (m *MinIOClient) Delete(ctx context.Context, objectName string) error {
	err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{})
	details := map[string]interface{}{
		"object_name": objectName,
		"bucket":      m.bucket,
	}
	if err != nil {
		logger.Error("minio_delete_failed", err, details)
	} else {
		logger.Info("minio_delete_success", details)
	}
	return err
}

func (m *MinIOClient) PublicURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", m.publicURL, m.bucket, objectName)
}

// EnsureBucket creates the bucket when missing and allows anonymous reads.
func (m *MinIOClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed creating bucket %s: %w", m.bucket, err)
		}
	}

	if err := m.client.SetBucketPolicy(ctx, m.bucket, publicReadPolicy(m.bucket)); err != nil {
		return fmt.Errorf("failed setting policy on bucket %s: %w", m.bucket, err)
	}
	return nil
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"AWS": ["*"]},
      "Action": ["s3:GetObject"],
      "Resource": ["arn:aws:s3:::%s/*"]
    }
  ]
}`, bucket)
}
