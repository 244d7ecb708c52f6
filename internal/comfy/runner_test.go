package comfy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/websocket"

	"chameflow/internal/protocol"
	"chameflow/internal/storage"
)

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestUploadImageSendsMultipartAndReturnsName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload/image" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "cat.png" {
			t.Errorf("filename = %q", header.Filename)
		}
		if overwrite := r.FormValue("overwrite"); overwrite != "true" {
			t.Errorf("overwrite = %q", overwrite)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "cat-bytes" {
			t.Errorf("data = %q", data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"cat (1).png"}`))
	}))
	defer srv.Close()

	runner, err := NewRunner(Options{ServerURL: srv.URL, Store: newTestStore(t)})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	name, err := runner.UploadImage(context.Background(), "cat.png", []byte("cat-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if name != "cat (1).png" {
		t.Fatalf("name = %q", name)
	}
}

func TestQueuePromptCarriesWorkflowAndClientID(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt" {
			http.NotFound(w, r)
			return
		}
		captured, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prompt_id":"p-42"}`))
	}))
	defer srv.Close()

	runner, err := NewRunner(Options{ServerURL: srv.URL, Store: newTestStore(t)})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	wf := Workflow{"1": {"inputs": map[string]any{"text": "hi"}}}
	promptID, err := runner.QueuePrompt(context.Background(), wf, "client-1")
	if err != nil {
		t.Fatalf("queue prompt: %v", err)
	}
	if promptID != "p-42" {
		t.Fatalf("prompt id = %q", promptID)
	}

	var payload struct {
		Prompt   Workflow `json:"prompt"`
		ClientID string   `json:"client_id"`
	}
	if err := json.Unmarshal(captured, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ClientID != "client-1" {
		t.Fatalf("client_id = %q", payload.ClientID)
	}
	if len(payload.Prompt) != 1 {
		t.Fatalf("prompt nodes = %d", len(payload.Prompt))
	}
}

func TestRunRelaysExecutionAndDownloadsOutputs(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prompt_id":"p1"}`))
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filename") != "out1.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("clientId") != "client-1" {
			http.Error(w, "unknown client", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []string{
			`{"type":"executing","data":{"node":"KSampler","prompt_id":"p1"}}`,
			`{"type":"executing","data":{"node":"Other","prompt_id":"someone-else"}}`,
			`{"type":"executed","data":{"prompt_id":"p1","output":{"images":[{"filename":"out1.png","subfolder":"","type":"output"}]}}}`,
			`{"type":"executing","data":{"node":null,"prompt_id":"p1"}}`,
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Keep the socket open until the runner is done reading.
		_, _, _ = conn.ReadMessage()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newTestStore(t)
	runner, err := NewRunner(Options{ServerURL: srv.URL, Store: store})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	var events []protocol.Event
	err = runner.Run(context.Background(), Workflow{}, "client-1", func(ev protocol.Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("events = %#v", events)
	}
	if status, ok := events[0].(protocol.StatusEvent); !ok || status.Message != protocol.PhaseQueued {
		t.Fatalf("first event = %#v", events[0])
	}
	if progress, ok := events[1].(protocol.ProgressEvent); !ok || progress.Node != "KSampler" {
		t.Fatalf("second event = %#v", events[1])
	}
	images, ok := events[2].(protocol.ImagesEvent)
	if !ok || len(images.Files) != 1 || images.Files[0] != "out1.png" {
		t.Fatalf("third event = %#v", events[2])
	}
	if status, ok := events[3].(protocol.StatusEvent); !ok || status.Message != protocol.PhaseCompleted {
		t.Fatalf("fourth event = %#v", events[3])
	}

	saved, err := os.ReadFile(filepath.Join(store.BasePath(), "out1.png"))
	if err != nil {
		t.Fatalf("read stored artifact: %v", err)
	}
	if string(saved) != "png-bytes" {
		t.Fatalf("stored bytes = %q", saved)
	}
}
