package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"nox-wallpaper/common"
	"nox-wallpaper/internal/credential"
	"nox-wallpaper/internal/oss"
	"nox-wallpaper/internal/poll"
	"nox-wallpaper/internal/utils"

	"google.golang.org/genai"
)

const (
	// 默认模型
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultVideoModel = "veo-3.1-fast-generate-preview"

	// 壁纸为竖屏
	wallpaperAspectRatio = "9:16"
	videoResolution      = "720p"
	videoMIMEType        = "video/mp4"

	// 默认请求超时时间（单次调用 Gemini / Veo 接口）
	defaultGenAITimeout = 60 * time.Second
	// 默认视频任务轮询间隔
	defaultPollInterval = 10 * time.Second
	// 默认视频下载超时时间
	defaultDownloadTimeout = 120 * time.Second

	noImageMessage = "Failed to generate image from Gemini API."
	noVideoMessage = "Video generation completed but no link was provided."
)

// Client 壁纸生成客户端：Gemini 生成图片，Veo 生成视频
type Client struct {
	imageModel  string
	videoModel  string
	credentials credential.Source
	store       oss.MediaStore
	newBackend  BackendFactory
	httpClient  *http.Client
	poller      poll.Poller
	timeout     time.Duration

	mu         sync.Mutex
	backendKey string
	backend    Backend
}

// Config 客户端配置
type Config struct {
	ImageModel string // 图片模型，例如：gemini-2.5-flash-image
	VideoModel string // 视频模型，例如：veo-3.1-fast-generate-preview
	// Credentials 提供当前选择的 API Key，每次请求都会重新读取
	Credentials credential.Source
	// Store 保存下载好的视频，返回浏览器可访问的地址
	Store oss.MediaStore
	// NewBackend 为空时使用 genai SDK
	NewBackend BackendFactory
	// HTTPClient 用于下载视频，为空时使用 DownloadTimeout 创建
	HTTPClient      *http.Client
	DownloadTimeout time.Duration
	// Poller 视频任务轮询策略，Interval 为 0 时使用默认值
	Poller  poll.Poller
	Timeout time.Duration // 单次请求超时时间
}

// NewClient 创建新的生成客户端
func NewClient(cfg Config) (*Client, error) {
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("media store is required")
	}

	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	videoModel := cfg.VideoModel
	if videoModel == "" {
		videoModel = DefaultVideoModel
	}

	newBackend := cfg.NewBackend
	if newBackend == nil {
		newBackend = NewSDKBackendFactory("")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		downloadTimeout := cfg.DownloadTimeout
		if downloadTimeout <= 0 {
			downloadTimeout = defaultDownloadTimeout
		}
		httpClient = &http.Client{Timeout: downloadTimeout}
	}

	poller := cfg.Poller
	if poller.Interval <= 0 {
		poller.Interval = defaultPollInterval
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGenAITimeout
	}

	return &Client{
		imageModel:  imageModel,
		videoModel:  videoModel,
		credentials: cfg.Credentials,
		store:       cfg.Store,
		newBackend:  newBackend,
		httpClient:  httpClient,
		poller:      poller,
		timeout:     timeout,
	}, nil
}

// backendFor 返回当前 API Key 对应的 Backend，Key 变化时重新创建
func (c *Client) backendFor(ctx context.Context) (Backend, string, error) {
	apiKey, err := c.credentials.APIKey(ctx)
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil && c.backendKey == apiKey {
		return c.backend, apiKey, nil
	}

	backend, err := c.newBackend(ctx, apiKey)
	if err != nil {
		return nil, "", err
	}
	c.backend = backend
	c.backendKey = apiKey
	return backend, apiKey, nil
}

// GenerateImage 文生图：返回 data URI 形式的图片引用
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	common.WithFields(map[string]interface{}{
		"model":  c.imageModel,
		"prompt": utils.TruncateForLog(prompt, 120),
	}).Debug("Starting image generation")

	backend, _, err := c.backendFor(ctx)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := backend.GenerateContent(callCtx, c.imageModel, []*genai.Content{
		{Parts: []*genai.Part{{Text: prompt}}},
	}, &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: wallpaperAspectRatio,
		},
	})
	if err != nil {
		common.WithError(err).WithField("model", c.imageModel).Error("Failed to generate image from Gemini API")
		return "", err
	}

	blob := firstInlineImage(result)
	if blob == nil {
		common.WithField("model", c.imageModel).Error("No image data found in Gemini response")
		return "", &GenerationError{Op: "generate_image", Message: noImageMessage}
	}

	common.WithFields(map[string]interface{}{
		"model":     c.imageModel,
		"mime_type": blob.MIMEType,
		"size":      len(blob.Data),
	}).Info("Image generated successfully")

	return utils.EncodeDataURI(blob.MIMEType, blob.Data), nil
}

// firstInlineImage 返回第一个候选中第一个带数据的内联部分
func firstInlineImage(result *genai.GenerateContentResponse) *genai.Blob {
	if result == nil || len(result.Candidates) == 0 {
		return nil
	}
	candidate := result.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return nil
	}
	for _, part := range candidate.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData
		}
	}
	return nil
}

// GenerateVideo 图生视频：提交 Veo 任务，轮询直到完成，下载视频并保存到媒体存储
func (c *Client) GenerateVideo(ctx context.Context, imageRef string, prompt string) (string, error) {
	backend, apiKey, err := c.backendFor(ctx)
	if err != nil {
		return "", err
	}

	imageData, mimeType, err := c.resolveSeedImage(ctx, imageRef)
	if err != nil {
		return "", fmt.Errorf("invalid image reference: %w", err)
	}

	common.WithFields(map[string]interface{}{
		"model":      c.videoModel,
		"prompt":     utils.TruncateForLog(prompt, 120),
		"image_mime": mimeType,
		"image_size": len(imageData),
	}).Info("Submitting video generation job")

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	operation, err := backend.GenerateVideos(callCtx, c.videoModel, prompt, &genai.Image{
		ImageBytes: imageData,
		MIMEType:   mimeType,
	}, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     videoResolution,
		AspectRatio:    wallpaperAspectRatio,
	})
	cancel()
	if err != nil {
		common.WithError(err).WithField("model", c.videoModel).Error("Failed to submit video generation job")
		return "", err
	}

	if !operation.Done {
		err = c.poller.Until(ctx, func(ctx context.Context, attempt int) (bool, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			next, err := backend.GetVideosOperation(callCtx, operation)
			if err != nil {
				return false, err
			}
			operation = next

			common.WithFields(map[string]interface{}{
				"operation": operation.Name,
				"attempt":   attempt,
				"done":      operation.Done,
			}).Debug("Waiting for video generation to complete")
			return operation.Done, nil
		})
		if err != nil {
			common.WithError(err).WithField("operation", operation.Name).Error("Video generation job did not complete")
			return "", err
		}
	}

	video, err := generatedVideo(operation)
	if err != nil {
		common.WithField("operation", operation.Name).Error(err.Error())
		return "", err
	}

	data, contentType := video.VideoBytes, video.MIMEType
	if len(data) == 0 {
		data, contentType, err = c.fetchVideo(ctx, video.URI, apiKey)
		if err != nil {
			return "", err
		}
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = videoMIMEType
	}

	ref, err := c.store.Put(ctx, utils.GenerateMediaKey("videos", contentType), data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store video: %w", err)
	}

	common.WithFields(map[string]interface{}{
		"operation": operation.Name,
		"size":      len(data),
		"video_ref": ref,
	}).Info("Video generated successfully")

	return ref, nil
}

// resolveSeedImage 去掉 data URI 前缀得到原始图片数据；http(s) 引用则下载
func (c *Client) resolveSeedImage(ctx context.Context, imageRef string) ([]byte, string, error) {
	switch {
	case utils.IsDataURI(imageRef):
		return utils.ParseDataURI(imageRef)
	case utils.IsHTTPURL(imageRef):
		return utils.DownloadFromURL(ctx, c.httpClient, imageRef)
	default:
		return nil, "", fmt.Errorf("unsupported image reference %q", utils.TruncateForLog(imageRef, 32))
	}
}

// generatedVideo 从已完成的任务中取出第一个视频，没有可用链接时返回 GenerationError
func generatedVideo(operation *genai.GenerateVideosOperation) (*genai.Video, error) {
	if operation.Response != nil && len(operation.Response.GeneratedVideos) > 0 {
		generated := operation.Response.GeneratedVideos[0]
		if generated != nil && generated.Video != nil &&
			(generated.Video.URI != "" || len(generated.Video.VideoBytes) > 0) {
			return generated.Video, nil
		}
	}

	message := noVideoMessage
	if msg, ok := operation.Error["message"].(string); ok && msg != "" {
		message += " " + msg
	}
	if operation.Response != nil && len(operation.Response.RAIMediaFilteredReasons) > 0 {
		message += " Filtered: " + strings.Join(operation.Response.RAIMediaFilteredReasons, "; ")
	}
	return nil, &GenerationError{Op: "generate_video", Message: message}
}

// fetchVideo 下载视频，API Key 作为 key 查询参数附加在链接上。网络错误原样返回。
func (c *Client) fetchVideo(ctx context.Context, link string, apiKey string) ([]byte, string, error) {
	authorized, err := utils.WithQueryParam(link, "key", apiKey)
	if err != nil {
		return nil, "", err
	}

	data, contentType, err := utils.DownloadFromURL(ctx, c.httpClient, authorized)
	if err != nil {
		// 网络错误中可能带有完整链接，日志里隐藏 Key
		common.WithField("error", strings.ReplaceAll(err.Error(), apiKey, common.MaskAPIKey(apiKey))).
			Error("Failed to download generated video")
		return nil, "", err
	}
	return data, contentType, nil
}

// Close 关闭客户端（genai.Client 不需要显式关闭）
func (c *Client) Close() error {
	c.mu.Lock()
	c.backend = nil
	c.backendKey = ""
	c.mu.Unlock()
	return nil
}
