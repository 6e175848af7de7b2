package server

import (
	"net/http"
	"time"

	"github.com/itsfuad/Poketab-Backend/internal/config"
	"github.com/itsfuad/Poketab-Backend/internal/metrics"
	"github.com/itsfuad/Poketab-Backend/internal/mw"
	"github.com/itsfuad/Poketab-Backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、健康检查与 WebSocket 端点。
// 聊天业务全部走 /ws 上的事件协议，HTTP 只承担探活与指标。
func SetupRouter(cfg config.Config, hub *ws.Hub, d *ws.Dispatcher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.ClientURL))
	// 控制单个 IP+路由的速率，挡住握手刷请求。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", ws.Serve(hub, d))

	return r
}
