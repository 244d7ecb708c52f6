package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chameflow/internal/infra"
	"chameflow/internal/protocol"
	"chameflow/internal/storage"
)

// EmitFunc receives relayed session events in upstream order. Returning an
// error stops the run.
type EmitFunc func(protocol.Event) error

// Options configures a Runner.
type Options struct {
	// ServerURL is the upstream ComfyUI base, e.g. "http://127.0.0.1:8188".
	ServerURL  string
	Store      *storage.FileStore
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *infra.Logger
}

// Runner talks to one upstream ComfyUI server: it uploads input images,
// queues prompts, listens on the per-client event socket, and downloads
// produced images into the artifact store.
type Runner struct {
	serverURL  string
	store      *storage.FileStore
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *infra.Logger
}

// NewRunner constructs a Runner for the upstream at opts.ServerURL.
func NewRunner(opts Options) (*Runner, error) {
	serverURL := strings.TrimRight(strings.TrimSpace(opts.ServerURL), "/")
	if serverURL == "" {
		return nil, fmt.Errorf("comfy: server url is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("comfy: artifact store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Runner{
		serverURL:  serverURL,
		store:      opts.Store,
		httpClient: httpClient,
		dialer:     dialer,
		logger:     logger,
	}, nil
}

// UploadImage sends image bytes to the upstream input store, overwriting
// any previous upload with the same name, and returns the name the server
// assigned.
func (r *Runner) UploadImage(ctx context.Context, filename string, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("comfy: build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("comfy: build upload: %w", err)
	}
	if err := writer.WriteField("overwrite", "true"); err != nil {
		return "", fmt.Errorf("comfy: build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("comfy: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serverURL+"/upload/image", body)
	if err != nil {
		return "", fmt.Errorf("comfy: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("comfy: upload image: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("comfy: read upload response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("comfy: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("comfy: decode upload response: %w", err)
	}
	if decoded.Name == "" {
		// Some servers omit the name when the original is kept.
		return filename, nil
	}
	return decoded.Name, nil
}

// QueuePrompt submits the workflow for execution and returns the prompt ID
// that identifies it on the event socket.
func (r *Runner) QueuePrompt(ctx context.Context, wf Workflow, clientID string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"prompt":    wf,
		"client_id": clientID,
	})
	if err != nil {
		return "", fmt.Errorf("comfy: encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serverURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("comfy: build prompt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("comfy: queue prompt: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("comfy: read prompt response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("comfy: prompt status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("comfy: decode prompt response: %w", err)
	}
	if decoded.PromptID == "" {
		return "", fmt.Errorf("comfy: prompt response carried no prompt_id")
	}
	return decoded.PromptID, nil
}

type upstreamMessage struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
		Output   struct {
			Images []artifactRef `json:"images"`
		} `json:"output"`
	} `json:"data"`
}

type artifactRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Run opens the per-client event socket, queues the workflow, and relays
// its execution as session events: status{queued} once accepted, one
// progress event per executing node, images once outputs are downloaded
// into the store, and status{completed} when execution finishes. Events for
// other clients' prompts are ignored.
func (r *Runner) Run(ctx context.Context, wf Workflow, clientID string, emit EmitFunc) error {
	conn, resp, err := r.dialer.DialContext(ctx, r.socketURL(clientID), nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("comfy: dial event socket: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	promptID, err := r.QueuePrompt(ctx, wf, clientID)
	if err != nil {
		return err
	}
	if err := emit(protocol.StatusEvent{Message: protocol.PhaseQueued}); err != nil {
		return err
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("comfy: event socket closed: %w", err)
		}
		if msgType != websocket.TextMessage {
			// Binary frames carry live preview pixels; not relayed.
			continue
		}
		var msg upstreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Debug().Err(err).Msg("comfy: skipping frame")
			continue
		}
		if msg.Data.PromptID != promptID {
			continue
		}
		switch msg.Type {
		case "executing":
			if msg.Data.Node == nil {
				return emit(protocol.StatusEvent{Message: protocol.PhaseCompleted})
			}
			if err := emit(protocol.ProgressEvent{Node: *msg.Data.Node}); err != nil {
				return err
			}
		case "executed":
			files := make([]string, 0, len(msg.Data.Output.Images))
			for _, img := range msg.Data.Output.Images {
				name, err := r.download(ctx, img)
				if err != nil {
					r.logger.Warn().Err(err).Str("filename", img.Filename).Msg("comfy: download failed")
					continue
				}
				files = append(files, name)
			}
			if len(files) > 0 {
				if err := emit(protocol.ImagesEvent{Files: files}); err != nil {
					return err
				}
			}
		}
	}
}

// download fetches one produced image through the view endpoint and writes
// it into the artifact store under its backend filename.
func (r *Runner) download(ctx context.Context, ref artifactRef) (string, error) {
	query := url.Values{}
	query.Set("filename", ref.Filename)
	query.Set("subfolder", ref.Subfolder)
	query.Set("type", ref.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.serverURL+"/view?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("comfy: build view request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("comfy: fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("comfy: view status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("comfy: read image: %w", err)
	}
	if _, err := r.store.Write(ctx, ref.Filename, data); err != nil {
		return "", err
	}
	return ref.Filename, nil
}

func (r *Runner) socketURL(clientID string) string {
	base := r.serverURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws?clientId=" + url.QueryEscape(clientID)
}
