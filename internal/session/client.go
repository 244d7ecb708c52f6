// Package session implements the client side of the generation session
// protocol: a single-attempt WebSocket session per job, the artifact
// uploader that precedes image-transforming jobs, and retrieval of
// produced artifacts by reference.
package session

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chameflow/internal/infra"
	"chameflow/internal/protocol"
)

// ReasonTransport is the failure reason recorded when the session
// connection could not be established, was reset, or closed before a
// terminal event arrived. A caller-enforced deadline that force-closes the
// connection surfaces the same way.
const ReasonTransport = "transport error"

// ReasonUnknown substitutes for a terminal error event carrying no message,
// so a failed session never reads as success.
const ReasonUnknown = "unknown backend error"

// Result is the outcome of one session: either a non-empty artifact list in
// the order the backend produced them, or a failure reason. Never both.
type Result struct {
	Artifacts []string
	Reason    string
}

// Failed reports whether the session ended in failure.
func (r Result) Failed() bool { return r.Reason != "" }

// Snapshot is the latest-known projection of a running session, for UI
// consumption only. Resolution of Run does not depend on it.
type Snapshot struct {
	Phase string
	Node  string
	Seed  int64
}

// ClientOptions configures a session Client.
type ClientOptions struct {
	// BaseURL is the gateway base, e.g. "http://localhost:8080". The
	// session endpoint and scheme are derived from it.
	BaseURL string
	Dialer  *websocket.Dialer
	Logger  *infra.Logger
	// Observer, when set, receives every event of the live session in
	// arrival order. It is invoked on the session goroutine and must not
	// call back into the Client.
	Observer func(protocol.Event)
}

// Client runs generation sessions. A Client owns at most one live
// connection: starting a new Run closes the connection of any Run still in
// flight, and the superseded Run resolves as a transport failure without
// delivering further events.
type Client struct {
	url      string
	dialer   *websocket.Dialer
	logger   *infra.Logger
	observer func(protocol.Event)

	mu   sync.Mutex
	gen  uint64
	conn *websocket.Conn
	snap Snapshot
}

// NewClient constructs a Client for the gateway at opts.BaseURL.
func NewClient(opts ClientOptions) *Client {
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
	return &Client{
		url:      SocketURL(opts.BaseURL),
		dialer:   dialer,
		logger:   logger,
		observer: opts.Observer,
	}
}

// SocketURL derives the session endpoint from a gateway base URL.
func SocketURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/generate"
}

// Snapshot returns the latest-known phase, node and seed of the current
// session. It is reset at the start of each Run.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Close force-closes the live connection, if any. An in-flight Run then
// resolves as a transport failure.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Run executes exactly one generation session: dial, send the job as the
// first message, consume events until the terminal one. It resolves exactly
// once, never retries, and imposes no timeout of its own; cancel ctx to
// force-close the connection.
func (c *Client) Run(ctx context.Context, job protocol.Job) Result {
	job.Normalize()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.snap = Snapshot{}
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		c.logger.Warn().Err(err).Str("url", c.url).Msg("session: dial failed")
		return Result{Reason: ReasonTransport}
	}

	c.mu.Lock()
	if c.gen != gen {
		// Superseded while dialing.
		c.mu.Unlock()
		_ = conn.Close()
		return Result{Reason: ReasonTransport}
	}
	c.conn = conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(job); err != nil {
		c.release(gen, conn)
		c.logger.Warn().Err(err).Msg("session: send job failed")
		return Result{Reason: ReasonTransport}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.release(gen, conn)
			return Result{Reason: ReasonTransport}
		}
		ev, err := protocol.UnmarshalEvent(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("session: skipping frame")
			continue
		}
		if !c.deliver(gen, ev) {
			// Superseded mid-read: the event belongs to an abandoned
			// connection and must not be observed.
			_ = conn.Close()
			return Result{Reason: ReasonTransport}
		}
		switch ev := ev.(type) {
		case protocol.ImagesEvent:
			c.release(gen, conn)
			return Result{Artifacts: ev.Files}
		case protocol.ErrorEvent:
			c.release(gen, conn)
			reason := ev.Message
			if reason == "" {
				reason = ReasonUnknown
			}
			return Result{Reason: reason}
		}
	}
}

// deliver updates the projection and forwards the event to the observer,
// unless the run identified by gen has been superseded. Holding the lock
// across the observer call keeps supersession strictly ordered with event
// delivery.
func (c *Client) deliver(gen uint64, ev protocol.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	switch ev := ev.(type) {
	case protocol.StatusEvent:
		c.snap.Phase = ev.Message
	case protocol.ProgressEvent:
		c.snap.Node = ev.Node
	case protocol.InfoEvent:
		c.snap.Seed = ev.Seed
	}
	if c.observer != nil {
		c.observer(ev)
	}
	return true
}

func (c *Client) release(gen uint64, conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.conn == conn {
		c.conn = nil
	}
}
