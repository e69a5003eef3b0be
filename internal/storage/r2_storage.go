package storage

import (
	"fmt"
	"pumptrack/internal/config"
	"strings"
)

// NewR2Storage 通过 S3 兼容接口访问 Cloudflare R2。
func NewR2Storage(cfg config.Config) (Storage, error) {
	endpoint := withScheme(cfg.StorageR2Endpoint)
	if endpoint == "" {
		accountID := strings.TrimSpace(cfg.StorageR2AccountID)
		if accountID == "" {
			return nil, fmt.Errorf("storage: missing R2 endpoint or account id")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}
	region := strings.TrimSpace(cfg.StorageR2Region)
	if region == "" {
		region = "auto"
	}
	bucket := strings.TrimSpace(cfg.StorageR2Bucket)

	// R2 没有默认公开域名，未配置时使用 path-style 的 API 地址
	store, err := newS3Storage(s3Settings{
		name:      "R2",
		region:    region,
		endpoint:  endpoint,
		accessKey: strings.TrimSpace(cfg.StorageR2AccessKeyID),
		secretKey: strings.TrimSpace(cfg.StorageR2SecretAccessKey),
		pathStyle: true,
		bucket:    bucket,
		prefix:    cfg.StorageR2Prefix,
		publicURL: publicBase(cfg.StoragePublicBaseURL, endpoint+"/"+bucket),
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
