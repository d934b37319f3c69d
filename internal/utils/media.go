package utils

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultImageMIMEType 无法识别图片类型时使用的 MIME 类型
const DefaultImageMIMEType = "image/png"

// DownloadFromURL 下载 URL 对应的内容，返回数据和 MIME 类型。
// 网络层错误原样返回，非 200 状态码返回描述性错误。
func DownloadFromURL(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("download failed: status code %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = InferMimeTypeFromURL(rawURL)
	}

	return data, mimeType, nil
}

// InferMimeTypeFromURL 从 URL 路径的扩展名推断 MIME 类型（不区分大小写）
func InferMimeTypeFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)

	switch {
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".gif"):
		return "image/gif"
	case strings.HasSuffix(path, ".webp"):
		return "image/webp"
	case strings.HasSuffix(path, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(path, ".webm"):
		return "video/webm"
	}
	return "application/octet-stream"
}

// EncodeDataURI 将二进制数据编码为 data URI
func EncodeDataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = DefaultImageMIMEType
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// IsDataURI 判断引用是否为 data URI
func IsDataURI(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}

// IsHTTPURL 判断引用是否为 http(s) URL
func IsHTTPURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ParseDataURI 去掉 data URI 前缀，返回解码后的数据与 MIME 类型
func ParseDataURI(ref string) ([]byte, string, error) {
	if !IsDataURI(ref) {
		return nil, "", fmt.Errorf("not a data URI")
	}

	parts := strings.SplitN(ref, ",", 2)
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("invalid data URI format")
	}

	header := strings.TrimPrefix(parts[0], "data:")
	if !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("data URI is not base64 encoded")
	}
	mimeType := strings.TrimSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = DefaultImageMIMEType
	}

	data, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 data: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("data URI carries no data")
	}
	return data, mimeType, nil
}

// WithQueryParam 在链接上追加查询参数，已有同名参数时覆盖
func WithQueryParam(link, key, value string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GenerateMediaKey 生成对象存储的 key：{kind}/yyyy-MM-dd/{uuid}.ext
func GenerateMediaKey(kind, mimeType string) string {
	return fmt.Sprintf("%s/%s/%s%s",
		kind,
		time.Now().Format("2006-01-02"),
		uuid.New().String(),
		GetExtensionFromMimeType(mimeType),
	)
}

// GetExtensionFromMimeType 根据 MIME 类型获取文件扩展名（不区分大小写）
func GetExtensionFromMimeType(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ".bin"
	}
}

// TruncateForLog 截断长字符串用于日志，避免打印过长内容（如 base64）
func TruncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
