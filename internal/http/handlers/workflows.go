package handlers

import (
	"net/http"

	"chameflow/internal/comfy"
)

// Workflows lists the workflow files available for generation.
func (a *App) Workflows(w http.ResponseWriter, r *http.Request) {
	names, err := comfy.ListWorkflows(a.Config.WorkflowsDir)
	if err != nil {
		a.Logger.Error().Err(err).Msg("gateway: list workflows failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list workflows")
		return
	}
	if names == nil {
		names = []string{}
	}
	a.json(w, http.StatusOK, map[string]any{"workflows": names})
}
