package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config 应用配置结构
type Config struct {
	// 运行模式: http（浏览器前端使用的 HTTP API）或 mcp（stdio MCP 服务）
	ServerMode    string `validate:"oneof=http mcp"`
	ServerAddress string
	ServerPort    string `validate:"required,numeric"`

	// GenAI 配置。API Key 可以为空，之后通过凭证选择接口设置
	GenAIBaseURL        string
	GenAIAPIKey         string
	GenAIImageModelName string `validate:"required"`
	GenAIVideoModelName string `validate:"required"`
	// GenAI 单次请求超时时间（秒）
	GenAITimeoutSeconds int `validate:"min=1"`

	// 视频任务轮询配置
	VideoPollIntervalSeconds    int `validate:"min=1"`
	VideoPollMaxAttempts        int `validate:"min=0"`
	VideoDownloadTimeoutSeconds int `validate:"min=1"`

	// 媒体存储: local 或 s3
	StorageBackend string `validate:"oneof=local s3"`
	MediaDir       string `validate:"required_if=StorageBackend local"`

	// OSS 配置（StorageBackend 为 s3 时使用）
	OSSEndpoint  string
	OSSRegion    string
	OSSAccessKey string `validate:"required_if=StorageBackend s3"`
	OSSSecretKey string `validate:"required_if=StorageBackend s3"`
	OSSBucket    string `validate:"required_if=StorageBackend s3"`
	// 大于 0 时返回带签名的 URL（秒）
	OSSSignedURLTTLSeconds int `validate:"min=0"`

	// 提示词预设文件（YAML），为空时只使用内置默认值
	PromptPresetsFile string

	// 日志配置
	LogLevel  string // 日志级别: debug, info, warn, error
	LogFormat string // 日志格式: json, text
	LogOutput string // 输出位置: stdout, stderr, file
	LogFile   string // 日志文件路径（当 LogOutput 为 file 时）
}

// LoadConfig 从 .env 文件加载配置
func LoadConfig() (*Config, error) {
	// 加载 .env 文件（如果存在）
	if err := godotenv.Load(); err != nil {
		// .env 文件不存在时，尝试从环境变量读取
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
	}

	config := &Config{
		ServerMode:    strings.ToLower(getEnv("SERVER_MODE", "http")),
		ServerAddress: getEnv("SERVER_ADDRESS", "0.0.0.0"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),

		GenAIBaseURL:        getEnv("GENAI_BASE_URL", ""),
		GenAIAPIKey:         getEnv("GENAI_API_KEY", ""),
		GenAIImageModelName: getEnv("GENAI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GenAIVideoModelName: getEnv("GENAI_VIDEO_MODEL", "veo-3.1-fast-generate-preview"),
		GenAITimeoutSeconds: getEnvInt("GENAI_TIMEOUT_SECONDS", 60),

		VideoPollIntervalSeconds:    getEnvInt("VIDEO_POLL_INTERVAL_SECONDS", 10),
		VideoPollMaxAttempts:        getEnvInt("VIDEO_POLL_MAX_ATTEMPTS", 90),
		VideoDownloadTimeoutSeconds: getEnvInt("VIDEO_DOWNLOAD_TIMEOUT_SECONDS", 120),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		MediaDir:       getEnv("MEDIA_DIR", "./media"),

		// OSS 配置
		OSSEndpoint:            getEnv("OSS_ENDPOINT", ""),
		OSSRegion:              getEnv("OSS_REGION", "us-east-1"),
		OSSAccessKey:           getEnv("OSS_ACCESS_KEY", ""),
		OSSSecretKey:           getEnv("OSS_SECRET_KEY", ""),
		OSSBucket:              getEnv("OSS_BUCKET", ""),
		OSSSignedURLTTLSeconds: getEnvInt("OSS_SIGNED_URL_TTL_SECONDS", 0),

		PromptPresetsFile: getEnv("PROMPT_PRESETS_FILE", ""),

		// 日志配置
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	// MCP 模式下 stdout 被协议占用，日志强制输出到 stderr
	if config.ServerMode == "mcp" && strings.EqualFold(config.LogOutput, "stdout") {
		config.LogOutput = "stderr"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// 初始化日志系统
	logConfig := &LogConfig{
		Level:    config.LogLevel,
		Format:   config.LogFormat,
		Output:   config.LogOutput,
		FilePath: config.LogFile,
	}
	if err := InitLogger(logConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return config, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return defaultValue
}

// GetServerAddr 返回完整的服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerAddress, c.ServerPort)
}

// GenAITimeout GenAI 单次请求超时时间
func (c *Config) GenAITimeout() time.Duration {
	return time.Duration(c.GenAITimeoutSeconds) * time.Second
}

// VideoPollInterval 视频任务轮询间隔
func (c *Config) VideoPollInterval() time.Duration {
	return time.Duration(c.VideoPollIntervalSeconds) * time.Second
}

// VideoDownloadTimeout 视频下载超时时间
func (c *Config) VideoDownloadTimeout() time.Duration {
	return time.Duration(c.VideoDownloadTimeoutSeconds) * time.Second
}
