package gemini

import (
	"nox-wallpaper/common"
	"nox-wallpaper/internal/credential"
	"nox-wallpaper/internal/oss"
	"nox-wallpaper/internal/poll"
)

// NewGeminiClientFromConfig 从配置创建生成客户端
func NewGeminiClientFromConfig(cfg *common.Config, creds credential.Source, store oss.MediaStore) (*Client, error) {
	return NewClient(Config{
		ImageModel:      cfg.GenAIImageModelName,
		VideoModel:      cfg.GenAIVideoModelName,
		Credentials:     creds,
		Store:           store,
		NewBackend:      NewSDKBackendFactory(cfg.GenAIBaseURL),
		DownloadTimeout: cfg.VideoDownloadTimeout(),
		Poller: poll.Poller{
			Interval:    cfg.VideoPollInterval(),
			MaxAttempts: cfg.VideoPollMaxAttempts,
		},
		Timeout: cfg.GenAITimeout(),
	})
}
