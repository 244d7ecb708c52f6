package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Phases reported through StatusEvent. Other backend-defined phases are
// passed through verbatim.
const (
	PhaseQueued    = "queued"
	PhaseCompleted = "completed"
)

// ErrUnknownEvent reports a frame whose type discriminator is not part of
// the protocol. Consumers are expected to skip such frames.
var ErrUnknownEvent = errors.New("protocol: unknown event type")

// Event is one message of a generation session stream. Zero or more
// non-terminal events precede exactly one terminal event per session.
type Event interface {
	// Terminal reports whether the event ends the session.
	Terminal() bool

	wireType() string
}

// StatusEvent reports a phase change such as "queued" or "completed".
type StatusEvent struct {
	Message string
}

// ProgressEvent identifies the processing stage currently executing.
type ProgressEvent struct {
	Node string
}

// InfoEvent reports the seed actually used for the run.
type InfoEvent struct {
	Seed int64
}

// ImagesEvent is the terminal success event carrying produced artifact names
// in backend order.
type ImagesEvent struct {
	Files []string
}

// ErrorEvent is the terminal failure event.
type ErrorEvent struct {
	Message string
}

func (StatusEvent) Terminal() bool   { return false }
func (ProgressEvent) Terminal() bool { return false }
func (InfoEvent) Terminal() bool     { return false }
func (ImagesEvent) Terminal() bool   { return true }
func (ErrorEvent) Terminal() bool    { return true }

func (StatusEvent) wireType() string   { return "status" }
func (ProgressEvent) wireType() string { return "progress" }
func (InfoEvent) wireType() string     { return "info" }
func (ImagesEvent) wireType() string   { return "images" }
func (ErrorEvent) wireType() string    { return "error" }

type envelope struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Node    string   `json:"node,omitempty"`
	Seed    *int64   `json:"seed,omitempty"`
	Files   []string `json:"files,omitempty"`
}

// UnmarshalEvent decodes one wire frame into its Event variant. Frames with
// an unrecognized type return ErrUnknownEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode event: %w", err)
	}
	switch env.Type {
	case "status":
		return StatusEvent{Message: env.Message}, nil
	case "progress":
		return ProgressEvent{Node: env.Node}, nil
	case "info":
		var seed int64
		if env.Seed != nil {
			seed = *env.Seed
		}
		return InfoEvent{Seed: seed}, nil
	case "images":
		return ImagesEvent{Files: env.Files}, nil
	case "error":
		return ErrorEvent{Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// MarshalEvent encodes an Event into its wire frame.
func MarshalEvent(ev Event) ([]byte, error) {
	env := envelope{Type: ev.wireType()}
	switch ev := ev.(type) {
	case StatusEvent:
		env.Message = ev.Message
	case ProgressEvent:
		env.Node = ev.Node
	case InfoEvent:
		seed := ev.Seed
		env.Seed = &seed
	case ImagesEvent:
		env.Files = ev.Files
	case ErrorEvent:
		env.Message = ev.Message
	default:
		return nil, fmt.Errorf("protocol: unsupported event %T", ev)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode event: %w", err)
	}
	return data, nil
}
