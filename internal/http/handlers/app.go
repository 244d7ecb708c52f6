package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"chameflow/internal/comfy"
	"chameflow/internal/infra"
	"chameflow/internal/storage"
)

// App bundles the gateway's dependencies for the HTTP handlers.
type App struct {
	Config   *infra.Config
	Logger   infra.Logger
	Runner   *comfy.Runner
	Store    *storage.FileStore
	upgrader websocket.Upgrader
}

func NewApp(cfg *infra.Config, logger infra.Logger, runner *comfy.Runner, store *storage.FileStore) *App {
	return &App{
		Config: cfg,
		Logger: logger,
		Runner: runner,
		Store:  store,
		upgrader: websocket.Upgrader{
			// The gateway is CORS-open; the socket follows suit.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"code": code, "message": message})
}
