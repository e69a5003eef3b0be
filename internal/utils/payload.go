package utils

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// DecodeDataURL decodes a data URL or bare base64 payload and returns the raw
// bytes together with a guessed file extension.
func DecodeDataURL(payload string) ([]byte, string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, "", fmt.Errorf("empty payload")
	}

	mimeType, base64Payload := SplitDataURL(trimmed)
	base64Payload = strings.TrimSpace(base64Payload)
	if base64Payload == "" {
		return nil, "", fmt.Errorf("empty base64 payload")
	}

	data, err := base64.StdEncoding.DecodeString(base64Payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}

	ext := ExtensionFromMime(mimeType)
	if ext == "" {
		ext = ExtensionFromMime(http.DetectContentType(data))
	}
	if ext == "" {
		ext = "bin"
	}
	return data, ext, nil
}

// SplitDataURL 拆分 data URL，返回 MIME 类型和 base64 内容；非 data URL 视为纯 base64。
func SplitDataURL(value string) (string, string) {
	if !strings.HasPrefix(value, "data:") {
		return "", value
	}

	value = strings.TrimPrefix(value, "data:")
	parts := strings.SplitN(value, ";base64,", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

var preferredExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/gif":       "gif",
	"application/pdf": "pdf",
	"text/plain":      "txt",
	"text/csv":        "csv",
}

// ExtensionFromMime maps a MIME type to a file extension without the dot.
func ExtensionFromMime(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if base == "" {
		return ""
	}
	if ext, ok := preferredExtensions[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return ""
}
