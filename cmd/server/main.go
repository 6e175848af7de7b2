package main

import (
	"time"

	"github.com/itsfuad/Poketab-Backend/internal/chat"
	"github.com/itsfuad/Poketab-Backend/internal/config"
	"github.com/itsfuad/Poketab-Backend/internal/linkpreview"
	clog "github.com/itsfuad/Poketab-Backend/internal/log"
	"github.com/itsfuad/Poketab-Backend/internal/server"
	"github.com/itsfuad/Poketab-Backend/internal/store"
	"github.com/itsfuad/Poketab-Backend/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、初始化日志、连接 Redis 并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)

	st, err := store.Connect(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("store connect")
	}

	hub := ws.NewHub()
	svc := chat.NewService(st, hub)
	preview := linkpreview.NewFetcher(time.Duration(cfg.LinkPreviewTimeout) * time.Millisecond)
	dispatcher := ws.NewDispatcher(svc, hub, preview)

	r := server.SetupRouter(cfg, hub, dispatcher)
	log.Info().Str("port", cfg.Port).Msg("socket server initialized")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
