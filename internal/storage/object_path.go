package storage

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPath is returned for empty, absolute or escaping object paths.
var ErrInvalidPath = errors.New("invalid object path")

func sanitizePathSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(len(value))
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			builder.WriteByte(ch)
		case ch == '-', ch == '_', ch == '.':
			builder.WriteByte(ch)
		}
	}
	return strings.Trim(builder.String(), ".")
}

func normalizeExtension(ext string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	trimmed = strings.ReplaceAll(sanitizePathSegment(trimmed), ".", "")
	if trimmed == "" {
		return "bin"
	}
	return trimmed
}

// AttachmentPath builds <category>/<owner>/<uuid>.<ext> for a new upload.
func AttachmentPath(category, owner, ext string) string {
	category = sanitizePathSegment(category)
	if category == "" {
		category = "misc"
	}
	owner = sanitizePathSegment(owner)
	if owner == "" {
		owner = "unassigned"
	}
	filename := fmt.Sprintf("%s.%s", uuid.NewString(), normalizeExtension(ext))
	return path.Join(category, owner, filename)
}

// cleanObjectPath rejects paths that would leave the bucket.
func cleanObjectPath(objectPath string) (string, error) {
	trimmed := strings.TrimSpace(objectPath)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

func cleanBucket(bucket string) (string, error) {
	b := sanitizePathSegment(bucket)
	if b == "" {
		return "", fmt.Errorf("%w: empty bucket", ErrInvalidPath)
	}
	return b, nil
}

// objectKey 拼出远端存储中的完整 key：<prefix>/<bucket>/<path>。
func objectKey(prefix, bucket, objectPath string) (string, error) {
	b, err := cleanBucket(bucket)
	if err != nil {
		return "", err
	}
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	return joinPrefix(prefix, path.Join(b, p)), nil
}

// DetectContentType guesses a MIME type from an object path's extension.
func DetectContentType(objectPath string) string {
	ext := path.Ext(objectPath)
	typeName := mime.TypeByExtension(ext)
	if ext == "" || typeName == "" {
		return "application/octet-stream"
	}
	return typeName
}

func joinPrefix(prefix, key string) string {
	cleanPrefix := trimPrefix(prefix)
	if cleanPrefix == "" {
		return strings.TrimLeft(key, "/")
	}
	return path.Join(cleanPrefix, strings.TrimLeft(key, "/"))
}

func trimPrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

// publicBase 优先使用配置的绝对地址，否则退回到后端默认域名。
func publicBase(configured, fallback string) string {
	c := strings.TrimRight(strings.TrimSpace(configured), "/")
	if strings.HasPrefix(c, "http://") || strings.HasPrefix(c, "https://") {
		return c
	}
	return strings.TrimRight(fallback, "/")
}

func remoteURL(base, prefix, bucket, objectPath string) string {
	key, err := objectKey(prefix, bucket, objectPath)
	if err != nil {
		return ""
	}
	return base + "/" + key
}
