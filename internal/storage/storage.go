package storage

import (
	"context"
	"fmt"
	"pumptrack/internal/config"
	"strings"
)

// STORAGE_TYPE 的取值
const (
	TypeLocal = "local"
	TypeS3    = "s3"  // Amazon S3 或兼容服务
	TypeOSS   = "oss" // 阿里云
	TypeCOS   = "cos" // 腾讯云
	TypeR2    = "r2"  // Cloudflare
)

// Storage 是附件的 blob 存储抽象。
//
// bucket 是逻辑桶名（例如 documents），objectPath 是桶内的相对路径。
// Upload 返回存储后的相对路径，PublicURL 由它推导出可访问的地址，不发起网络请求。
type Storage interface {
	Upload(ctx context.Context, bucket, objectPath string, data []byte) (string, error)
	PublicURL(bucket, objectPath string) string
}

// LocalBaseDirProvider 由暴露可通过 HTTP 直接提供服务的本地目录的存储驱动实现。
type LocalBaseDirProvider interface {
	LocalBaseDir() string
}

var remoteBackends = map[string]func(config.Config) (Storage, error){
	TypeS3:  NewS3Storage,
	TypeOSS: NewOSSStorage,
	TypeCOS: NewCOSStorage,
	TypeR2:  NewR2Storage,
}

// NewStorage 按 STORAGE_TYPE 选择后端，未配置时使用本地目录。
func NewStorage(cfg config.Config) (Storage, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.StorageType))
	if kind == "" || kind == TypeLocal {
		return NewLocalStorage(cfg.StorageLocalDir, cfg.StoragePublicBaseURL)
	}
	build, ok := remoteBackends[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
	return build(cfg)
}
