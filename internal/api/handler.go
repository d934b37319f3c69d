package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"nox-wallpaper/common"
	"nox-wallpaper/internal/credential"
	"nox-wallpaper/internal/prompt"
	"nox-wallpaper/internal/sse"
	"nox-wallpaper/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/panjf2000/ants/v2"
)

// KeyOfferer 接收浏览器端直接提交的 API Key
type KeyOfferer interface {
	Offer(key string)
}

// Handler 浏览器前端使用的 HTTP 接口
type Handler struct {
	wf      *workflow.Workflow
	presets prompt.Presets
	keys    KeyOfferer
	pool    *ants.Pool
	// 后台任务使用的 context，不随单个请求结束而取消
	jobCtx context.Context
}

// NewHandler 创建 Handler。生成任务在 pool 中执行，keys 可以为 nil。
func NewHandler(ctx context.Context, wf *workflow.Workflow, presets prompt.Presets, keys KeyOfferer, pool *ants.Pool) *Handler {
	return &Handler{
		wf:      wf,
		presets: presets,
		keys:    keys,
		pool:    pool,
		jobCtx:  ctx,
	}
}

// RegisterRoutes 注册 /api 下的所有接口
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api")
	g.GET("/state", h.GetState)
	g.GET("/config", h.GetConfig)
	g.PUT("/config", h.UpdateConfig)
	g.GET("/presets", h.ListPresets)
	g.POST("/presets/:name", h.ApplyPreset)
	g.POST("/image", h.GenerateImage)
	g.POST("/video", h.GenerateVideo)
	g.GET("/credential", h.GetCredential)
	g.POST("/credential", h.SelectCredential)
}

// GetState 返回当前工作流快照
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.wf.Snapshot())
}

// GetConfig 返回当前提示词配置
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.wf.Snapshot().Prompt)
}

// UpdateConfig 用请求中非空的字段覆盖当前提示词配置
func (h *Handler) UpdateConfig(c *gin.Context) {
	var patch prompt.Config
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := h.wf.Snapshot().Prompt.Merge(patch)
	if err := h.wf.SetPromptConfig(cfg); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ListPresets 返回所有提示词预设
func (h *Handler) ListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"names":   h.presets.Names(),
		"presets": h.presets,
	})
}

// ApplyPreset 把指定预设设为当前提示词配置
func (h *Handler) ApplyPreset(c *gin.Context) {
	name := c.Param("name")
	cfg, ok := h.presets[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("preset %q not found", name)})
		return
	}
	if err := h.wf.SetPromptConfig(cfg); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// GenerateImage 开始生成图片，立即返回 202，结果通过 /api/state 或 /api/events 获取
func (h *Handler) GenerateImage(c *gin.Context) {
	job, err := h.wf.BeginImage()
	if err != nil {
		respondError(c, err)
		return
	}
	h.submit(job)
	c.JSON(http.StatusAccepted, h.wf.Snapshot())
}

// GenerateVideo 开始把当前图片生成视频
func (h *Handler) GenerateVideo(c *gin.Context) {
	job, err := h.wf.BeginVideo()
	if err != nil {
		respondError(c, err)
		return
	}
	h.submit(job)
	c.JSON(http.StatusAccepted, h.wf.Snapshot())
}

// submit 在 pool 中执行任务。提交失败时以已取消的 context 执行，让工作流进入 error 状态而不是一直停在生成中。
func (h *Handler) submit(job *workflow.Job) {
	err := h.pool.Submit(func() {
		_ = job.Run(h.jobCtx)
	})
	if err == nil {
		return
	}

	common.WithError(err).WithField("job", job.Kind()).Error("Failed to schedule generation job")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = job.Run(ctx)
}

// GetCredential 重新检查凭证状态
func (h *Handler) GetCredential(c *gin.Context) {
	ok, err := h.wf.RefreshCredential(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_credential": ok})
}

type selectCredentialRequest struct {
	APIKey string `json:"api_key"`
}

// SelectCredential 选择 API Key。请求体可选，带 api_key 时直接使用该 Key。
func (h *Handler) SelectCredential(c *gin.Context) {
	var req selectCredentialRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.APIKey != "" && h.keys != nil {
		h.keys.Offer(req.APIKey)
	}

	if err := h.wf.SelectCredential(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_credential": true})
}

// respondError 把工作流错误映射为 HTTP 状态码
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrBusy), errors.Is(err, workflow.ErrNoImage):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrCredentialRequired), errors.Is(err, credential.ErrNoCredential):
		status = http.StatusPreconditionRequired
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// PublishSnapshots 把每次状态变化以 JSON 推送到 hub
func PublishSnapshots(wf *workflow.Workflow, hub *sse.Hub) {
	wf.OnChange(func(s workflow.Snapshot) {
		data, err := json.Marshal(s)
		if err != nil {
			common.WithError(err).Error("Failed to encode workflow snapshot")
			return
		}
		hub.Publish(data)
	})
}
