package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/itsfuad/Poketab-Backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// SessionState 描述连接与房间的关系，三态互斥：
// 未附着、在某个 key 的等候室、已入场某个 key。
type SessionState int

const (
	StateUnattached SessionState = iota
	StateWaiting
	StateAdmitted
)

// Client 是一条活跃的 websocket 连接，同时承担会话注册表职责：
// 入场后记住 {roomKey, uid, name}，断连清理优先走这份内存状态，
// 存储里的 socket 记录只作进程重启后的回灌来源。
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	limiter *rate.Limiter

	mu      sync.Mutex
	state   SessionState
	roomKey string
	uid     string
	name    string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(rate.Every(time.Second/50), 100),
	}
}

// Send 非阻塞投递；慢消费者直接丢帧，避免拖垮整个扇出。
func (c *Client) Send(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) setWaiting(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateWaiting
	c.roomKey = key
	c.uid = ""
	c.name = ""
}

func (c *Client) setAdmitted(key, uid, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateAdmitted
	c.roomKey = key
	c.uid = uid
	c.name = name
}

func (c *Client) setUnattached() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUnattached
	c.roomKey = ""
	c.uid = ""
	c.name = ""
}

func (c *Client) session() (SessionState, string, string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.roomKey, c.uid, c.name
}

// Serve 升级 HTTP 连接并启动读写泵，生命周期随连接结束。
func Serve(hub *Hub, d *Dispatcher) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			return
		}
		c := newClient(hub, conn)
		hub.Attach(c)
		metrics.WsConnections.Inc()

		go c.writePump()
		c.readPump(d)
	}
}

func (c *Client) readPump(d *Dispatcher) {
	defer func() {
		d.handleDisconnect(c)
		c.hub.Detach(c.ID)
		metrics.WsConnections.Dec()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if !c.limiter.Allow() {
			continue
		}
		d.dispatch(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		// send 永不关闭，慢消费者由 Send 的丢帧策略兜底；
		// 泵的退出统一由连接关闭触发。
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
