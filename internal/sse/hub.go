package sse

import (
	"context"
)

// Hub 向所有订阅者广播事件。
//
// 说明：
//   - 订阅、取消订阅、发布都通过内部通道交给 Run 所在的 goroutine 串行处理，
//     clients 只在该 goroutine 中读写。
//   - 订阅者的 channel 由调用方创建和关闭，Hub 只负责发送；读得慢的订阅者会丢消息。
type Hub struct {
	clients map[chan []byte]struct{}

	subscribe   chan chan []byte
	unsubscribe chan chan []byte
	publish     chan []byte
	done        chan struct{}
}

// NewHub 创建新的 Hub。publish 通道带缓冲（100），短时突发发布不会阻塞发布者。
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[chan []byte]struct{}),
		subscribe:   make(chan chan []byte),
		unsubscribe: make(chan chan []byte),
		publish:     make(chan []byte, 100),
		done:        make(chan struct{}),
	}
}

// Run 启动事件循环，直到 ctx 结束。应在单独的 goroutine 中运行：
//
//	hub := sse.NewHub()
//	go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ch := <-h.subscribe:
			h.clients[ch] = struct{}{}
		case ch := <-h.unsubscribe:
			delete(h.clients, ch)
		case msg := <-h.publish:
			for ch := range h.clients {
				select {
				case ch <- msg:
				default:
					// drop if client not reading
				}
			}
		}
	}
}

// Publish 把消息交给事件循环广播。Hub 已停止时直接丢弃。
func (h *Hub) Publish(msg []byte) {
	select {
	case h.publish <- msg:
	case <-h.done:
	}
}

// Subscribe 注册订阅者。调用方应提供带缓冲的 channel，并在不再需要时先 Unsubscribe 再关闭。
// Hub 已停止时返回 false。
func (h *Hub) Subscribe(ch chan []byte) bool {
	select {
	case h.subscribe <- ch:
		return true
	case <-h.done:
		return false
	}
}

// Unsubscribe 取消订阅
func (h *Hub) Unsubscribe(ch chan []byte) {
	select {
	case h.unsubscribe <- ch:
	case <-h.done:
	}
}
