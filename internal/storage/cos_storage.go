package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"pumptrack/internal/config"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// cosStorage 腾讯云 COS 后端，桶地址形如 https://<bucket>-<appid>.cos.<region>.myqcloud.com
type cosStorage struct {
	client  *cos.Client
	prefix  string
	baseURL string
}

func NewCOSStorage(cfg config.Config) (Storage, error) {
	bucketURL := withScheme(cfg.StorageCOSBucketURL)
	if bucketURL == "" {
		return nil, errors.New("storage: missing COS bucket URL")
	}
	parsed, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("storage: parse COS bucket URL: %w", err)
	}
	secretID := strings.TrimSpace(cfg.StorageCOSSecretID)
	secretKey := strings.TrimSpace(cfg.StorageCOSSecretKey)
	if secretID == "" || secretKey == "" {
		return nil, errors.New("storage: missing COS credentials")
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: parsed}, &http.Client{
		Transport: &cos.AuthorizationTransport{SecretID: secretID, SecretKey: secretKey},
	})
	return &cosStorage{
		client:  client,
		prefix:  trimPrefix(cfg.StorageCOSPrefix),
		baseURL: publicBase(cfg.StoragePublicBaseURL, bucketURL),
	}, nil
}

// Upload 带 x-cos-forbid-overwrite 写入，同名对象已存在时保留原对象
func (s *cosStorage) Upload(ctx context.Context, bucket, objectPath string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty payload")
	}
	key, err := objectKey(s.prefix, bucket, objectPath)
	if err != nil {
		return "", err
	}

	header := http.Header{}
	header.Set("x-cos-forbid-overwrite", "true")
	resp, err := s.client.Object.Put(ctx, key, bytes.NewReader(data), &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType:   DetectContentType(key),
			XOptionHeader: &header,
		},
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if cosErr, ok := cos.IsCOSError(err); ok && cosErr.Code == "FileAlreadyExists" {
			return cleanObjectPath(objectPath)
		}
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return cleanObjectPath(objectPath)
}

func (s *cosStorage) PublicURL(bucket, objectPath string) string {
	return remoteURL(s.baseURL, s.prefix, bucket, objectPath)
}

var _ Storage = (*cosStorage)(nil)
