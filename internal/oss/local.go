package oss

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"nox-wallpaper/common"
)

// LocalStore 将媒体写入本地目录。urlPrefix 非空时返回 HTTP 静态路由下的地址，
// 为空时（没有 HTTP 服务，例如 MCP 模式）返回文件的绝对路径。
type LocalStore struct {
	dir       string
	urlPrefix string

	mu      sync.Mutex
	written []string
}

// NewLocalStore 创建本地存储，dir 不存在时自动创建
func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("media dir is required")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
	}, nil
}

// Dir 返回存储根目录
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put 实现 MediaStore
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid media key: %q", key)
	}

	target := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		common.WithError(err).WithField("path", target).Error("Failed to write media file")
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	s.mu.Lock()
	s.written = append(s.written, target)
	s.mu.Unlock()

	common.WithFields(map[string]interface{}{
		"path":         target,
		"content_type": contentType,
		"size":         len(data),
	}).Info("Media stored locally")

	if s.urlPrefix == "" {
		return target, nil
	}
	return s.urlPrefix + clean, nil
}

// Purge 删除本进程写入的所有媒体文件，以及因此变空的子目录。目录中其他文件保持不变。
func (s *LocalStore) Purge() error {
	s.mu.Lock()
	written := s.written
	s.written = nil
	s.mu.Unlock()

	var errs []error
	for _, target := range written {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		// 非空目录会删除失败，忽略即可
		for dir := filepath.Dir(target); dir != s.dir && strings.HasPrefix(dir, s.dir); dir = filepath.Dir(dir) {
			if os.Remove(dir) != nil {
				break
			}
		}
	}

	common.WithField("files", len(written)).Info("Session media purged")
	return errors.Join(errs...)
}
