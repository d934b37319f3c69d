package sse

import (
	"fmt"
	"net/http"

	"nox-wallpaper/common"

	"github.com/gin-gonic/gin"
)

// Handler 返回 SSE 连接处理函数。initial 非空时，连接建立后先推送一次它返回的消息。
func Handler(h *Hub, event string, initial func() []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.String(http.StatusInternalServerError, "streaming unsupported")
			return
		}

		msgCh := make(chan []byte, 16)
		if !h.Subscribe(msgCh) {
			c.String(http.StatusServiceUnavailable, "event stream closed")
			return
		}
		defer h.Unsubscribe(msgCh)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Status(http.StatusOK)

		// 注释行作为握手，部分代理需要尽快收到数据
		fmt.Fprint(c.Writer, ": connected\n\n")
		if initial != nil {
			writeEvent(c, event, initial())
		}
		flusher.Flush()

		notify := c.Request.Context().Done()
		for {
			select {
			case <-notify:
				common.Debug("SSE client disconnected")
				return
			case msg := <-msgCh:
				writeEvent(c, event, msg)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(c *gin.Context, event string, data []byte) {
	if event != "" {
		fmt.Fprintf(c.Writer, "event: %s\n", event)
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
}
