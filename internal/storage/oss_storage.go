package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"pumptrack/internal/config"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// ossStorage 阿里云 OSS 后端
type ossStorage struct {
	bucket  *oss.Bucket
	prefix  string
	baseURL string
}

func NewOSSStorage(cfg config.Config) (Storage, error) {
	endpoint := withScheme(cfg.StorageOSSEndpoint)
	bucketName := strings.TrimSpace(cfg.StorageOSSBucket)
	accessKey := strings.TrimSpace(cfg.StorageOSSAccessKeyID)
	secretKey := strings.TrimSpace(cfg.StorageOSSAccessKeySecret)
	switch {
	case endpoint == "":
		return nil, errors.New("storage: missing OSS endpoint")
	case bucketName == "":
		return nil, errors.New("storage: missing OSS bucket")
	case accessKey == "" || secretKey == "":
		return nil, errors.New("storage: missing OSS credentials")
	}

	client, err := oss.New(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("storage: create OSS client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("storage: open OSS bucket: %w", err)
	}

	// 默认公开域名为 https://<bucket>.<endpoint host>
	host := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return &ossStorage{
		bucket:  bucket,
		prefix:  trimPrefix(cfg.StorageOSSPrefix),
		baseURL: publicBase(cfg.StoragePublicBaseURL, "https://"+bucketName+"."+host),
	}, nil
}

// Upload 禁止覆盖写入，对象已存在时保留原对象
func (s *ossStorage) Upload(ctx context.Context, bucket, objectPath string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty payload")
	}
	key, err := objectKey(s.prefix, bucket, objectPath)
	if err != nil {
		return "", err
	}

	err = s.bucket.PutObject(key, bytes.NewReader(data),
		oss.WithContext(ctx),
		oss.ContentType(DetectContentType(key)),
		oss.ForbidOverWrite(true),
	)
	var svcErr oss.ServiceError
	if err != nil && !(errors.As(err, &svcErr) && svcErr.Code == "FileAlreadyExists") {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return cleanObjectPath(objectPath)
}

func (s *ossStorage) PublicURL(bucket, objectPath string) string {
	return remoteURL(s.baseURL, s.prefix, bucket, objectPath)
}

var _ Storage = (*ossStorage)(nil)
