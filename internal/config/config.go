package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port               string
	Env                string
	RedisAddr          string
	RedisPassword      string
	ClientURL          string
	LinkPreviewTimeout int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// Load 从环境变量加载配置，缺省值面向本地开发环境。
func Load() Config {
	port := getenv("APP_PORT", "3000")
	env := getenv("APP_ENV", "dev")
	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	redisPassword := getenv("REDIS_PASSWORD", "")
	clientURL := getenv("CLIENT_URL", "http://localhost:5173")
	previewStr := getenv("LINK_PREVIEW_TIMEOUT_MS", "5000")
	preview, _ := strconv.Atoi(previewStr)
	if preview <= 0 {
		preview = 5000
	}
	return Config{
		Port:               port,
		Env:                env,
		RedisAddr:          redisAddr,
		RedisPassword:      redisPassword,
		ClientURL:          clientURL,
		LinkPreviewTimeout: preview,
	}
}
