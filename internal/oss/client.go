package oss

import (
	"fmt"
	"time"

	"nox-wallpaper/common"
)

// LocalMediaRoute 本地存储在 HTTP 服务上的访问前缀
const LocalMediaRoute = "/media"

// NewMediaStoreFromConfig 根据 STORAGE_BACKEND 创建媒体存储
func NewMediaStoreFromConfig(cfg *common.Config) (MediaStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		return NewS3Store(S3Config{
			Endpoint:     cfg.OSSEndpoint,
			Region:       cfg.OSSRegion,
			AccessKey:    cfg.OSSAccessKey,
			SecretKey:    cfg.OSSSecretKey,
			Bucket:       cfg.OSSBucket,
			SignedURLTTL: time.Duration(cfg.OSSSignedURLTTLSeconds) * time.Second,
		})
	case "local", "":
		// MCP 模式没有 HTTP 服务，直接返回文件路径
		if cfg.ServerMode == "mcp" {
			return NewLocalStore(cfg.MediaDir, "")
		}
		return NewLocalStore(cfg.MediaDir, LocalMediaRoute)
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %s", cfg.StorageBackend)
	}
}
