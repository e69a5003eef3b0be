package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"pumptrack/internal/config"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// s3Settings 是 S3 与 R2 共用的连接参数
type s3Settings struct {
	name         string
	region       string
	endpoint     string
	accessKey    string
	secretKey    string
	sessionToken string
	pathStyle    bool
	bucket       string
	prefix       string
	publicURL    string
}

// s3Storage 把逻辑桶映射到一个物理桶下的 <prefix>/<bucket>/ 目录
type s3Storage struct {
	client  *s3.Client
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Storage 创建 Amazon S3（或兼容服务）后端。
func NewS3Storage(cfg config.Config) (Storage, error) {
	bucket := strings.TrimSpace(cfg.StorageS3Bucket)
	region := strings.TrimSpace(cfg.StorageS3Region)
	endpoint := withScheme(cfg.StorageS3Endpoint)

	fallback := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	if endpoint != "" {
		fallback = endpoint + "/" + bucket
	}
	store, err := newS3Storage(s3Settings{
		name:         "S3",
		region:       region,
		endpoint:     endpoint,
		accessKey:    strings.TrimSpace(cfg.StorageS3AccessKeyID),
		secretKey:    strings.TrimSpace(cfg.StorageS3SecretAccessKey),
		sessionToken: strings.TrimSpace(cfg.StorageS3SessionToken),
		pathStyle:    cfg.StorageS3ForcePathStyle,
		bucket:       bucket,
		prefix:       cfg.StorageS3Prefix,
		publicURL:    publicBase(cfg.StoragePublicBaseURL, fallback),
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newS3Storage(set s3Settings) (*s3Storage, error) {
	switch {
	case set.bucket == "":
		return nil, fmt.Errorf("storage: missing %s bucket", set.name)
	case set.region == "":
		return nil, fmt.Errorf("storage: missing %s region", set.name)
	case set.accessKey == "" || set.secretKey == "":
		return nil, fmt.Errorf("storage: missing %s credentials", set.name)
	}

	awsCfg := aws.Config{
		Region: set.region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(set.accessKey, set.secretKey, set.sessionToken),
		),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = set.pathStyle
		if set.endpoint != "" {
			o.BaseEndpoint = aws.String(set.endpoint)
		}
	})

	return &s3Storage{
		client:  client,
		bucket:  set.bucket,
		prefix:  trimPrefix(set.prefix),
		baseURL: set.publicURL,
	}, nil
}

// Upload 写入 <prefix>/<bucket>/<objectPath>。
// 使用 If-None-Match 条件写入，同名对象已存在时保留原对象。
func (s *s3Storage) Upload(ctx context.Context, bucket, objectPath string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty payload")
	}
	key, err := objectKey(s.prefix, bucket, objectPath)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(DetectContentType(key)),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil && !objectExists(err) {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return cleanObjectPath(objectPath)
}

// PublicURL 拼接公开访问地址。
func (s *s3Storage) PublicURL(bucket, objectPath string) string {
	return remoteURL(s.baseURL, s.prefix, bucket, objectPath)
}

var _ Storage = (*s3Storage)(nil)

// objectExists 判断条件写入是否因对象已存在而被拒绝
func objectExists(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusPreconditionFailed
	}
	return false
}

func withScheme(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return endpoint
}
