package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"smart_edu_backend/internal/config"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"smart_edu_backend/pkg/logger"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider 附件存储后端
type StorageProvider interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, objectName string) error
	Name() string
}

// LocalStorageProvider 本地磁盘，文件通过 /uploads 静态路由访问
type LocalStorageProvider struct {
	Root string
}

func (p *LocalStorageProvider) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(p.Root, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		os.Remove(dst)
		return "", err
	}
	return "/uploads/" + objectName, nil
}

func (p *LocalStorageProvider) Delete(ctx context.Context, objectName string) error {
	return os.Remove(filepath.Join(p.Root, filepath.FromSlash(objectName)))
}

func (p *LocalStorageProvider) Name() string { return util.StorageLocal }

type MinioStorageProvider struct {
	Bucket string
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return "/" + p.Bucket + "/" + objectName, nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, objectName string) error {
	return p.Client.RemoveObject(ctx, p.Bucket, objectName, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) Name() string { return util.StorageMinio }

type OSSStorageProvider struct {
	Endpoint string
	Bucket   string
	Client   *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Endpoint: cfg.OSSEndpoint, Bucket: cfg.OSSBucket, Client: client}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Bucket)
	if err != nil {
		return "", err
	}
	if err := bucket.PutObject(objectName, reader, oss.ContentType(contentType)); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s.%s/%s", p.Bucket, p.Endpoint, objectName), nil
}

func (p *OSSStorageProvider) Delete(ctx context.Context, objectName string) error {
	bucket, err := p.Client.Bucket(p.Bucket)
	if err != nil {
		return err
	}
	return bucket.DeleteObject(objectName)
}

func (p *OSSStorageProvider) Name() string { return util.StorageOSS }

// StorageService 作答附件上传
type StorageService struct {
	provider     StorageProvider
	maxSize      int64
	allowedTypes []string
}

func NewStorageService(cfg *config.Config) *StorageService {
	var provider StorageProvider
	switch cfg.Storage.Type {
	case util.StorageMinio:
		p, err := NewMinioStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("MinIO init failed, falling back to local storage", zap.Error(err))
		} else {
			provider = p
		}
	case util.StorageOSS:
		p, err := NewOSSStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("OSS init failed, falling back to local storage", zap.Error(err))
		} else {
			provider = p
		}
	}

	if provider == nil {
		provider = &LocalStorageProvider{Root: cfg.Storage.LocalPath}
	}

	return NewStorageServiceWithProvider(provider, int64(cfg.Storage.MaxUploadMB)<<20)
}

func NewStorageServiceWithProvider(provider StorageProvider, maxSize int64) *StorageService {
	if maxSize <= 0 {
		maxSize = 20 << 20
	}
	return &StorageService{
		provider:     provider,
		maxSize:      maxSize,
		allowedTypes: util.AllowedAttachmentTypes,
	}
}

// SaveAttachment 校验大小和内容类型后上传，返回可写入 Answer.files 的 File
func (s *StorageService) SaveAttachment(ctx context.Context, header *multipart.FileHeader) (*model.File, error) {
	if header.Size <= 0 {
		return nil, util.NewValidationError("file", "file is empty")
	}
	if header.Size > s.maxSize {
		return nil, util.NewValidationError("file", fmt.Sprintf("file exceeds %d bytes", s.maxSize))
	}

	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	mimeType, err := util.ValidateMimeType(src, s.allowedTypes)
	if err != nil {
		return nil, util.NewValidationError("file", err.Error())
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	objectName := s.objectName(header.Filename)
	url, err := s.provider.Upload(ctx, objectName, src, header.Size, mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload to %s: %w", s.provider.Name(), err)
	}

	logger.Log.Info("Attachment uploaded",
		zap.String("provider", s.provider.Name()),
		zap.String("object", objectName),
		zap.Int64("size", header.Size))

	return &model.File{
		Name: header.Filename,
		URL:  url,
		Size: header.Size,
		Type: mimeType,
	}, nil
}

func (s *StorageService) objectName(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join("attachments", time.Now().UTC().Format("200601"), uuid.New().String()+ext)
}
