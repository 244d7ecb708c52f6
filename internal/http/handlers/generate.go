package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chameflow/internal/comfy"
	"chameflow/internal/protocol"
)

// Generate runs one generation session over a WebSocket: the first client
// message is the job descriptor, then the gateway streams typed events
// until the run ends. Setup failures surface as a terminal error event
// rather than a handshake failure so the client sees a normal session.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	var job protocol.Job
	if err := conn.ReadJSON(&job); err != nil {
		a.Logger.Warn().Err(err).Msg("gateway: invalid job message")
		return
	}
	job.Normalize()

	wf, err := comfy.LoadWorkflow(a.Config.WorkflowsDir, job.Workflow)
	if err != nil {
		a.sendEvent(conn, protocol.ErrorEvent{Message: fmt.Sprintf("Setup failed: %v", err)})
		return
	}
	seed := comfy.ApplySettings(wf, job)
	if !a.sendEvent(conn, protocol.InfoEvent{Seed: seed}) {
		return
	}

	clientID := uuid.NewString()
	a.Logger.Info().Str("workflow", job.Workflow).Str("client_id", clientID).Int64("seed", seed).Msg("gateway: session started")

	err = a.Runner.Run(r.Context(), wf, clientID, func(ev protocol.Event) error {
		if !a.sendEvent(conn, ev) {
			return fmt.Errorf("gateway: client gone")
		}
		return nil
	})
	if err != nil {
		a.Logger.Warn().Err(err).Str("client_id", clientID).Msg("gateway: session failed")
		a.sendEvent(conn, protocol.ErrorEvent{Message: err.Error()})
	}
}

func (a *App) sendEvent(conn *websocket.Conn, ev protocol.Event) bool {
	data, err := protocol.MarshalEvent(ev)
	if err != nil {
		a.Logger.Error().Err(err).Msg("gateway: encode event failed")
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}
