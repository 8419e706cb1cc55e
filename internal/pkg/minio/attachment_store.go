package minio

import (
	"Courier/internal/api/config"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
)

// AttachmentStore 消息附件存储
type AttachmentStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	PublicURL(objectName string) string
}

type attachmentStoreImpl struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewAttachmentStore(client *minio.Client, cfg config.MinIOConfig) AttachmentStore {
	baseURL := strings.TrimRight(cfg.PublicURL, "/")
	if baseURL == "" {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", protocol, cfg.Endpoint, cfg.Bucket)
	}
	return &attachmentStoreImpl{client: client, bucket: cfg.Bucket, baseURL: baseURL}
}

// Upload 返回对象 key
func (s *attachmentStoreImpl) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return info.Key, nil
}

func (s *attachmentStoreImpl) PublicURL(objectName string) string {
	return s.baseURL + "/" + objectName
}
