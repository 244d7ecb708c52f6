// Package batch drives an ordered queue of input files through
// upload → generate, one item at a time, recording a per-item outcome.
package batch

import "io"

// Status is the lifecycle state of a queue item. Transitions only move
// forward: pending → uploading → processing → done | failed, where
// uploading and processing may each fail directly. The only way back to
// pending is clearing the queue and enqueueing a fresh item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Item is one unit of batch work. Artifact is set only when the item
// reaches done; Reason only when it reaches failed; never both. Preview is
// an optional locally-rendered preview resource released on queue clear.
type Item struct {
	Name    string
	Data    []byte
	Preview io.Closer

	Status   Status
	Artifact string
	Reason   string
}
