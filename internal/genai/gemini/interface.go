package gemini

import "context"

// WallpaperIface 两阶段生成：先生成静态图片，再由图片生成动态视频
type WallpaperIface interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	GenerateVideo(ctx context.Context, imageRef string, prompt string) (string, error)
}
