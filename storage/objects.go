package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	maxAvatarBytes int64 = 5 * 1024 * 1024
	maxFileBytes   int64 = 50 * 1024 * 1024
)

// ObjectStorage stores avatars and knowledge-base source files in MinIO/S3.
type ObjectStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewObjectStorageFromEnv initialises ObjectStorage from MINIO_* environment
// variables. Returns (nil, nil) when storage is not configured; callers treat
// a nil store as "uploads disabled".
func NewObjectStorageFromEnv() (*ObjectStorage, error) {
	endpoint := strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	accessKey := strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	bucket := strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}

	useSSL := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_USE_SSL")), "true")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	publicURL := strings.TrimSpace(os.Getenv("MINIO_PUBLIC_URL"))
	if publicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	return &ObjectStorage{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// UploadAvatar stores an avatar image beneath avatars/<segments...>. Only
// common image types are accepted.
func (s *ObjectStorage) UploadAvatar(ctx context.Context, fileHeader *multipart.FileHeader, segments ...string) (string, error) {
	return s.uploadMultipart(ctx, fileHeader, "avatars", maxAvatarBytes, isAllowedImageContent, segments...)
}

// UploadFile stores an arbitrary knowledge-base source file beneath
// files/<segments...>.
func (s *ObjectStorage) UploadFile(ctx context.Context, fileHeader *multipart.FileHeader, segments ...string) (string, error) {
	return s.uploadMultipart(ctx, fileHeader, "files", maxFileBytes, nil, segments...)
}

func (s *ObjectStorage) uploadMultipart(ctx context.Context, fileHeader *multipart.FileHeader, prefix string, maxBytes int64, allowed func(string) bool, segments ...string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: object storage not configured")
	}
	if fileHeader == nil {
		return "", errors.New("storage: file not provided")
	}
	if fileHeader.Size > 0 && fileHeader.Size > maxBytes {
		return "", fmt.Errorf("storage: file size exceeds %d bytes", maxBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("storage: open upload: %w", err)
	}
	defer src.Close()

	var buffer bytes.Buffer
	limited := io.LimitReader(src, maxBytes+1)
	written, err := io.Copy(&buffer, limited)
	if err != nil {
		return "", fmt.Errorf("storage: read upload: %w", err)
	}
	if written > maxBytes {
		return "", fmt.Errorf("storage: file size exceeds %d bytes", maxBytes)
	}

	data := buffer.Bytes()
	contentType := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if allowed != nil && !allowed(contentType) {
		return "", fmt.Errorf("storage: unsupported content type %q", contentType)
	}

	objectName := s.objectKey(prefix, fileHeader.Filename, contentType, segments...)
	return s.putObject(ctx, objectName, data, contentType)
}

// UploadBytes stores raw bytes (archive import path) and returns the public
// URL of the created object.
func (s *ObjectStorage) UploadBytes(ctx context.Context, data []byte, filename, contentType string, segments ...string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: object storage not configured")
	}
	if int64(len(data)) > maxFileBytes {
		return "", fmt.Errorf("storage: file size exceeds %d bytes", maxFileBytes)
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(data)
	}

	objectName := s.objectKey("files", filename, contentType, segments...)
	return s.putObject(ctx, objectName, data, contentType)
}

func (s *ObjectStorage) objectKey(prefix, filename, contentType string, segments ...string) string {
	parts := []string{prefix}
	for _, segment := range segments {
		trimmed := strings.Trim(segment, "/")
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	key := path.Join(parts...)
	return path.Join(key, fmt.Sprintf("%s%s", uuid.NewString(), objectExtension(filename, contentType)))
}

func (s *ObjectStorage) putObject(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(uploadCtx, s.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=604800",
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload object: %w", err)
	}

	return s.buildPublicURL(objectName), nil
}

// Remove deletes the object pointed to by the provided URL/object path.
func (s *ObjectStorage) Remove(ctx context.Context, objectURL string) error {
	if s == nil || s.client == nil {
		return nil
	}
	objectName, ok := s.objectNameFromURL(objectURL)
	if !ok {
		return nil
	}

	removeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.client.RemoveObject(removeCtx, s.bucket, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL returns a temporary URL for accessing the given object.
func (s *ObjectStorage) PresignedURL(ctx context.Context, raw string, expiry time.Duration) (string, error) {
	if s == nil || s.client == nil {
		return strings.TrimSpace(raw), nil
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	objectName, ok := s.objectNameFromURL(trimmed)
	if !ok {
		if !strings.Contains(trimmed, "://") {
			objectName = strings.TrimPrefix(trimmed, "/")
			objectName = strings.TrimPrefix(objectName, s.bucket+"/")
		}
	}
	if objectName == "" {
		return trimmed, nil
	}

	presignCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	signed, err := s.client.PresignedGetObject(presignCtx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return signed.String(), nil
}

func (s *ObjectStorage) buildPublicURL(objectName string) string {
	base := strings.TrimSuffix(s.publicURL, "/")
	object := strings.TrimPrefix(objectName, "/")
	return fmt.Sprintf("%s/%s/%s", base, s.bucket, object)
}

func (s *ObjectStorage) objectNameFromURL(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	base := strings.TrimSuffix(s.publicURL, "/")
	if base != "" && strings.HasPrefix(trimmed, base) {
		candidate := strings.TrimPrefix(trimmed, base)
		candidate = strings.TrimPrefix(candidate, "/")
		candidate = strings.TrimPrefix(candidate, s.bucket+"/")
		candidate = strings.TrimPrefix(candidate, "/")
		if candidate != "" {
			return candidate, true
		}
	}

	target, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err == nil && baseURL.Host != "" && baseURL.Host == target.Host {
		candidate := strings.TrimPrefix(target.Path, "/")
		candidate = strings.TrimPrefix(candidate, s.bucket+"/")
		candidate = strings.TrimPrefix(candidate, "/")
		if candidate != "" {
			return candidate, true
		}
	}

	if !strings.Contains(trimmed, "://") {
		candidate := strings.TrimPrefix(trimmed, "/")
		candidate = strings.TrimPrefix(candidate, s.bucket+"/")
		candidate = strings.TrimPrefix(candidate, "/")
		if candidate != "" {
			return candidate, true
		}
	}

	return "", false
}

func isAllowedImageContent(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png", "image/x-png":
		return true
	case "image/jpeg", "image/pjpeg":
		return true
	case "image/webp":
		return true
	case "image/gif":
		return true
	default:
		return false
	}
}

func objectExtension(filename, contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png", "image/x-png":
		return ".png"
	case "image/jpeg", "image/pjpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "text/plain", "text/plain; charset=utf-8":
		return ".txt"
	case "text/markdown":
		return ".md"
	case "application/pdf":
		return ".pdf"
	}
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(filename)))
	if ext == "" {
		return ".bin"
	}
	return ext
}
