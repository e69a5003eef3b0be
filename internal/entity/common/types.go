package common

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout 是阶段表中 planned/actual 列使用的时间格式。
const TimestampLayout = "2006-01-02 15:04:05"

// Row 是记录存储返回的一行原始数据，键为列名。
type Row map[string]interface{}

// Clone 返回行的浅拷贝。
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String 以字符串形式读取列值，列不存在或为 NULL 时返回空字符串。
func (r Row) String(key string) string {
	value, ok := r[key]
	if !ok {
		return ""
	}
	return FormatValue(value)
}

// Lookup reports whether the column exists and returns its string form.
func (r Row) Lookup(key string) (string, bool) {
	value, ok := r[key]
	if !ok {
		return "", false
	}
	return FormatValue(value), true
}

// FormatValue converts a driver value into its display string.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case []byte:
		return string(v)
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(TimestampLayout)
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return v.Format(TimestampLayout)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// CommaList 以逗号拼接的文本形式存储字符串切片。
type CommaList []string

// ParseCommaList splits a comma-joined value, trimming blanks and duplicates.
func ParseCommaList(value string) CommaList {
	if strings.TrimSpace(value) == "" {
		return CommaList{}
	}
	parts := strings.Split(value, ",")
	out := make(CommaList, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// String 返回逗号拼接的文本。
func (l CommaList) String() string {
	return strings.Join(l, ",")
}

// Contains 检查列表是否包含给定值（忽略大小写）。
func (l CommaList) Contains(s string) bool {
	for _, v := range l {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Value 实现 driver.Valuer 接口。
func (l CommaList) Value() (driver.Value, error) {
	return l.String(), nil
}

// Scan 实现 sql.Scanner 接口。
func (l *CommaList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = CommaList{}
		return nil
	case []byte:
		*l = ParseCommaList(string(v))
		return nil
	case string:
		*l = ParseCommaList(v)
		return nil
	default:
		return fmt.Errorf("unsupported type for CommaList: %T", value)
	}
}

// Meta 包含分页元数据。
type Meta struct {
	Page     int64 `json:"page"`
	PageSize int64 `json:"page_size"`
	Total    int64 `json:"total"`
}

// BaseParams 包含通用的分页和排序参数。
type BaseParams struct {
	PageSize int64  `json:"page_size" form:"page_size" query:"page_size"`
	Page     int64  `json:"page" form:"page" query:"page"`
	SortBy   string `json:"sort_by" form:"sort_by" query:"sort_by"`
	SortDesc bool   `json:"sort_desc" form:"sort_desc" query:"sort_desc"`
}
