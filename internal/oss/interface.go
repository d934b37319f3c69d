package oss

import "context"

// MediaStore 保存生成的媒体文件，返回浏览器可以直接访问的地址
type MediaStore interface {
	// Put 保存数据，key 为相对路径（例如 videos/2025-01-01/xxx.mp4）
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
