package ws

import (
	"sync"
)

// Hub 按频道名管理订阅关系并负责扇出，实现延迟创建与并发安全。
// 每个房间 key 对应两个逻辑频道：chat:<key> 与 waitingRoom:<key>。
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Client
	clients  map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[string]*Client),
		clients:  make(map[string]*Client),
	}
}

// Attach 登记一个活跃连接，连接建立时调用一次。
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Detach 注销连接并清掉它残留的所有订阅。
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
	for name, subs := range h.channels {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.channels, name)
		}
	}
}

// Subscribe 将连接加入频道，频道不存在时懒创建。重复订阅是幂等的。
func (h *Hub) Subscribe(channel, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.clients[connID]
	if c == nil {
		return
	}
	subs := h.channels[channel]
	if subs == nil {
		subs = make(map[string]*Client)
		h.channels[channel] = subs
	}
	subs[connID] = c
}

// Unsubscribe 将连接移出频道；空频道随手回收。对未订阅的连接是空操作。
func (h *Hub) Unsubscribe(channel, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.channels[channel]
	if subs == nil {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
}

// Subscribers 返回频道当前订阅数，供测试与指标使用。
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Emit 向频道内全部连接广播一个事件。
func (h *Hub) Emit(channel, event string, data any) {
	h.emit(channel, "", event, data)
}

// EmitExcept 广播但跳过指定连接，用于排除发送者自己。
func (h *Hub) EmitExcept(channel, exceptConnID, event string, data any) {
	h.emit(channel, exceptConnID, event, data)
}

func (h *Hub) emit(channel, exceptConnID, event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.channels[channel] {
		if id == exceptConnID {
			continue
		}
		c.Send(frame)
	}
}

// EmitTo 只发给单个连接，用于私有系统消息。
func (h *Hub) EmitTo(connID, event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c != nil {
		c.Send(frame)
	}
}
