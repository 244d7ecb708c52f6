package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"chameflow/internal/http/handlers"
	"chameflow/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.CORS([]string{"*"}),
		middleware.Logger(app.Logger),
		chimiddleware.Recoverer,
	)

	r.Get("/healthz", app.Health)
	r.Get("/api/workflows", app.Workflows)
	r.Post("/api/upload", app.Upload)
	r.Get("/ws/generate", app.Generate)
	r.Get("/images/{name}", app.Image)

	return r
}
