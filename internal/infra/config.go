package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv          string
	Port            string
	ComfyServer     string
	WorkflowsDir    string
	DownloadDir     string
	HTTPIdleTimeout time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		ComfyServer:     getEnv("COMFY_SERVER", "http://127.0.0.1:8188"),
		WorkflowsDir:    getEnv("WORKFLOWS_DIR", "./workflows"),
		DownloadDir:     getEnv("DOWNLOAD_DIR", "./downloaded_images"),
		HTTPIdleTimeout: time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	cfg.ComfyServer = strings.TrimRight(cfg.ComfyServer, "/")
	parsed, err := url.Parse(cfg.ComfyServer)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("COMFY_SERVER must be a valid http(s) URL, got %q", cfg.ComfyServer)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
