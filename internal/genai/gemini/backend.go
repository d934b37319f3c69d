package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Backend 生成客户端用到的 genai SDK 接口子集
type Backend interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// BackendFactory 使用给定的 API Key 创建 Backend
type BackendFactory func(ctx context.Context, apiKey string) (Backend, error)

// NewSDKBackendFactory 返回基于 genai SDK 的 BackendFactory，baseURL 为空时使用默认地址
func NewSDKBackendFactory(baseURL string) BackendFactory {
	return func(ctx context.Context, apiKey string) (Backend, error) {
		clientConfig := &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if baseURL != "" {
			clientConfig.HTTPOptions = genai.HTTPOptions{
				BaseURL: baseURL,
			}
		}

		client, err := genai.NewClient(ctx, clientConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		return &sdkBackend{client: client}, nil
	}
}

type sdkBackend struct {
	client *genai.Client
}

func (b *sdkBackend) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return b.client.Models.GenerateContent(ctx, model, contents, config)
}

func (b *sdkBackend) GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return b.client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

func (b *sdkBackend) GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return b.client.Operations.GetVideosOperation(ctx, operation, nil)
}
