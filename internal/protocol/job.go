// Package protocol defines the wire format spoken between the generation
// session client and the gateway: the job descriptor sent as the first
// message of a session, and the typed event stream sent back.
package protocol

// MaxDimension caps the requested output width and height.
const MaxDimension = 2048

// DefaultDimension is used when a job omits width or height.
const DefaultDimension = 1024

// Job describes one generation session. It is sent as the first message on
// the session socket and is never mutated after submission. Seed nil means
// the backend picks a random seed. Model, Sensitivity and InputImage are
// only meaningful for artifact-transforming workflows and are omitted from
// the wire form when unset.
type Job struct {
	Workflow       string   `json:"workflow"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	Seed           *int64   `json:"seed"`
	Model          string   `json:"model,omitempty"`
	Sensitivity    *float64 `json:"sensitivity,omitempty"`
	InputImage     string   `json:"input_image,omitempty"`
}

// Normalize applies dimension defaults and clamps both axes to MaxDimension.
func (j *Job) Normalize() {
	if j.Width <= 0 {
		j.Width = DefaultDimension
	}
	if j.Height <= 0 {
		j.Height = DefaultDimension
	}
	if j.Width > MaxDimension {
		j.Width = MaxDimension
	}
	if j.Height > MaxDimension {
		j.Height = MaxDimension
	}
}
