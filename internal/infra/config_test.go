package infra

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("COMFY_SERVER", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppEnv != "development" {
		t.Fatalf("app env = %q", cfg.AppEnv)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.ComfyServer != "http://127.0.0.1:8188" {
		t.Fatalf("comfy server = %q", cfg.ComfyServer)
	}
}

func TestLoadConfigTrimsTrailingSlash(t *testing.T) {
	t.Setenv("COMFY_SERVER", "http://gpu-box:8188/")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ComfyServer != "http://gpu-box:8188" {
		t.Fatalf("comfy server = %q", cfg.ComfyServer)
	}
}

func TestLoadConfigRejectsInvalidServerURL(t *testing.T) {
	t.Setenv("COMFY_SERVER", "not a url")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for invalid COMFY_SERVER")
	}
}
