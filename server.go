package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nox-wallpaper/common"
	"nox-wallpaper/internal/api"
	"nox-wallpaper/internal/credential"
	"nox-wallpaper/internal/genai/gemini"
	"nox-wallpaper/internal/oss"
	"nox-wallpaper/internal/prompt"
	"nox-wallpaper/internal/sse"
	"nox-wallpaper/internal/tools"
	"nox-wallpaper/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	// 加载配置
	config, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 打印配置信息（隐藏敏感信息）
	common.WithFields(map[string]interface{}{
		"mode":        config.ServerMode,
		"base_url":    config.GenAIBaseURL,
		"image_model": config.GenAIImageModelName,
		"video_model": config.GenAIVideoModelName,
		"storage":     config.StorageBackend,
		"api_key":     common.MaskAPIKey(config.GenAIAPIKey),
	}).Info("Server starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := credential.NewStore(config.GenAIAPIKey, credential.EnvRequester("GENAI_API_KEY"))

	store, err := oss.NewMediaStoreFromConfig(config)
	if err != nil {
		common.Fatalf("Failed to create media store: %v", err)
	}

	client, err := gemini.NewGeminiClientFromConfig(config, creds, store)
	if err != nil {
		common.Fatalf("Failed to create Gemini client: %v", err)
	}
	defer client.Close()

	presets, err := prompt.LoadPresets(config.PromptPresetsFile)
	if err != nil {
		common.Fatalf("Failed to load prompt presets: %v", err)
	}

	wf := workflow.New(client, creds, presets[prompt.DefaultPresetName])
	if ok, err := wf.RefreshCredential(ctx); err != nil {
		common.WithError(err).Warn("Failed to check API key")
	} else if !ok {
		common.Warn("No API key configured, select one before animating")
	}

	switch config.ServerMode {
	case "mcp":
		err = serveMCP(wf, presets, creds)
	default:
		var mediaDir string
		if local, ok := store.(*oss.LocalStore); ok {
			mediaDir = local.Dir()
		}
		err = serveHTTP(ctx, config, wf, presets, creds, mediaDir)
	}

	// 本地媒体只保留到进程退出，S3 中的对象交给 bucket 自身的生命周期规则
	if local, ok := store.(*oss.LocalStore); ok {
		if perr := local.Purge(); perr != nil {
			common.WithError(perr).Warn("Failed to purge session media")
		}
	}
	if err != nil {
		common.Fatalf("Server error: %v", err)
	}
}

// serveMCP 以 stdio 方式提供 MCP tools
func serveMCP(wf *workflow.Workflow, presets prompt.Presets, creds *credential.Store) error {
	s := server.NewMCPServer(
		"Nox Wallpaper MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	if err := tools.NewWallpaperTools(wf, presets, creds).Register(s); err != nil {
		return fmt.Errorf("failed to register wallpaper tools: %w", err)
	}

	return server.ServeStdio(s)
}

// serveHTTP 提供浏览器前端使用的 HTTP 接口，ctx 结束时优雅退出
func serveHTTP(ctx context.Context, config *common.Config, wf *workflow.Workflow, presets prompt.Presets, creds *credential.Store, mediaDir string) error {
	if config.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	// gin 自身的调试和 panic 输出也写入 logrus
	gin.DefaultWriter = common.GetLogger().WriterLevel(logrus.DebugLevel)
	gin.DefaultErrorWriter = common.GetLogger().WriterLevel(logrus.ErrorLevel)

	// 同一时间只有一个生成任务
	pool, err := ants.NewPool(1, ants.WithPanicHandler(func(p interface{}) {
		common.Errorf("Panic in generation job: %v", p)
	}))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	hub := sse.NewHub()
	go hub.Run(ctx)
	api.PublishSnapshots(wf, hub)

	handler := api.NewHandler(ctx, wf, presets, creds, pool)
	srv := &http.Server{
		Addr:    config.GetServerAddr(),
		Handler: api.NewRouter(handler, hub, mediaDir),
		// 退出时取消请求 context，SSE 长连接随之结束
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		common.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	common.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
