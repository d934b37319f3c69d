package api

import (
	"encoding/json"
	"net/http"

	"nox-wallpaper/common"
	"nox-wallpaper/internal/oss"
	"nox-wallpaper/internal/sse"

	"github.com/gin-gonic/gin"
)

// NewRouter 组装 gin 路由。mediaDir 非空时在 /media 下提供本地保存的视频。
func NewRouter(h *Handler, hub *sse.Hub, mediaDir string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), common.GinLogger())

	if err := r.SetTrustedProxies(nil); err != nil {
		common.WithError(err).Warn("Failed to reset trusted proxies")
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h.RegisterRoutes(r)
	r.GET("/api/events", sse.Handler(hub, "state", func() []byte {
		data, _ := json.Marshal(h.wf.Snapshot())
		return data
	}))

	if mediaDir != "" {
		r.Static(oss.LocalMediaRoute, mediaDir)
	}
	return r
}
