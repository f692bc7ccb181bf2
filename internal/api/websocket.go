// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Corphon/ScriptRelayMCP/internal/logger"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 与上传端点一致，对所有来源开放
		return true
	},
}

// EventClient 表示一个订阅上传事件的客户端连接
type EventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub 向所有已连接客户端广播上传生命周期事件
type EventHub struct {
	clients    map[*EventClient]bool
	broadcast  chan []byte
	register   chan *EventClient
	unregister chan *EventClient
	mu         sync.RWMutex
}

// 全局事件中心
var eventHub = &EventHub{
	clients:    make(map[*EventClient]bool),
	broadcast:  make(chan []byte, 256),
	register:   make(chan *EventClient, 16),
	unregister: make(chan *EventClient, 16),
}

func init() {
	go eventHub.run()
}

// run 事件中心主循环
func (h *EventHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 队列满的客户端丢弃本条消息，不阻塞广播
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast 向所有客户端广播一条事件
func (h *EventHub) Broadcast(event map[string]interface{}) {
	event["timestamp"] = time.Now().Format(time.RFC3339)

	message, err := json.Marshal(event)
	if err != nil {
		return
	}

	select {
	case h.broadcast <- message:
	default:
		logger.L().Warn("事件广播队列已满，消息被丢弃")
	}
}

// ClientCount 返回当前连接的客户端数量
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// serveEvents 将HTTP连接升级为WebSocket并接入事件中心
func serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().WithError(err).Warn("WebSocket升级失败")
		return
	}

	client := &EventClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	eventHub.register <- client

	go client.writeLoop()
	go client.readLoop()
}

// writeLoop 把事件写给客户端
func (c *EventClient) writeLoop() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readLoop 消费并丢弃客户端消息，连接断开时注销
// 事件通道是单向的，客户端发来的内容不承载语义
func (c *EventClient) readLoop() {
	defer func() {
		eventHub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
