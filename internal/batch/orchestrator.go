package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"chameflow/internal/infra"
	"chameflow/internal/protocol"
	"chameflow/internal/session"
	"chameflow/pkg/zip"
)

// ErrBusy is returned when Process is called while a previous call is
// still draining the queue.
var ErrBusy = errors.New("batch: processing already active")

// ArchivePrefix is prepended to each archive entry's original source name.
const ArchivePrefix = "processed_"

// Uploader uploads one file and returns its artifact reference.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// Runner executes one generation session.
type Runner interface {
	Run(ctx context.Context, job protocol.Job) session.Result
}

// Fetcher retrieves artifact bytes by reference.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Options configures an Orchestrator.
type Options struct {
	Uploader Uploader
	Runner   Runner
	Fetcher  Fetcher
	Logger   *infra.Logger
}

// Orchestrator owns the batch queue. External callers observe it only
// through the Items snapshot; all mutation happens through Enqueue, Clear
// and Process.
type Orchestrator struct {
	uploader Uploader
	runner   Runner
	fetcher  Fetcher
	logger   *infra.Logger

	mu     sync.Mutex
	items  []*Item
	active bool
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{
		uploader: opts.Uploader,
		runner:   opts.Runner,
		fetcher:  opts.Fetcher,
		logger:   logger,
	}
}

// Enqueue appends one item per input, in the order supplied, after any
// existing items. Each starts out pending.
func (o *Orchestrator) Enqueue(items ...Item) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range items {
		it := items[i]
		it.Status = StatusPending
		it.Artifact = ""
		it.Reason = ""
		o.items = append(o.items, &it)
	}
}

// Clear empties the queue and releases preview resources. It is a no-op
// while processing is active.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return
	}
	for _, it := range o.items {
		if it.Preview != nil {
			_ = it.Preview.Close()
		}
	}
	o.items = nil
}

// Items returns a read-only snapshot of the queue in insertion order.
func (o *Orchestrator) Items() []Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := make([]Item, len(o.items))
	for i, it := range o.items {
		snapshot[i] = *it
	}
	return snapshot
}

// Process drains the queue sequentially in insertion order, skipping items
// that are not pending, so a second call after a completed run performs no
// work. Exactly one item is in flight at a time. A per-item failure is
// recorded on the item and never aborts the rest of the batch. The shared
// job is used as-is for every item except for InputImage, which is set to
// the item's uploaded artifact reference.
func (o *Orchestrator) Process(ctx context.Context, shared protocol.Job) error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return ErrBusy
	}
	o.active = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()
	}()

	for i := 0; ; i++ {
		it := o.itemAt(i)
		if it == nil {
			return nil
		}
		if ctx.Err() != nil {
			// Stop consuming; remaining items stay pending for a rerun.
			return ctx.Err()
		}
		if it.Status != StatusPending {
			continue
		}
		o.processItem(ctx, it, shared)
	}
}

func (o *Orchestrator) processItem(ctx context.Context, it *Item, shared protocol.Job) {
	o.setStatus(it, StatusUploading)
	ref, err := o.uploader.Upload(ctx, it.Name, it.Data)
	if err != nil {
		o.logger.Warn().Err(err).Str("item", it.Name).Msg("batch: upload failed")
		o.fail(it, err.Error())
		return
	}

	o.setStatus(it, StatusProcessing)
	job := shared
	job.InputImage = ref
	res := o.runner.Run(ctx, job)
	if res.Failed() {
		o.logger.Warn().Str("item", it.Name).Str("reason", res.Reason).Msg("batch: generation failed")
		o.fail(it, res.Reason)
		return
	}
	if len(res.Artifacts) == 0 {
		o.fail(it, "backend returned no artifacts")
		return
	}
	// Batch workflows yield exactly one artifact per item; keep the first
	// and discard the rest.
	o.done(it, res.Artifacts[0])
}

// BuildArchive fetches the bytes of every done item and packages them into
// a single zip, each entry named from the item's original source name.
// Queue state is never mutated. With no done items it fails with
// zip.ErrEmptyArchive.
func (o *Orchestrator) BuildArchive(ctx context.Context) ([]byte, error) {
	o.mu.Lock()
	var completed []Item
	for _, it := range o.items {
		if it.Status == StatusDone {
			completed = append(completed, *it)
		}
	}
	o.mu.Unlock()

	if len(completed) == 0 {
		return nil, zip.ErrEmptyArchive
	}
	entries := make([]zip.Entry, 0, len(completed))
	for _, it := range completed {
		data, err := o.fetcher.Fetch(ctx, it.Artifact)
		if err != nil {
			return nil, fmt.Errorf("batch: fetch %s: %w", it.Artifact, err)
		}
		entries = append(entries, zip.Entry{Name: it.Name, Data: data})
	}
	return zip.Build(ArchivePrefix, entries)
}

func (o *Orchestrator) itemAt(i int) *Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= len(o.items) {
		return nil
	}
	return o.items[i]
}

func (o *Orchestrator) setStatus(it *Item, s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it.Status = s
}

func (o *Orchestrator) fail(it *Item, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it.Status = StatusFailed
	it.Reason = reason
}

func (o *Orchestrator) done(it *Item, artifact string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it.Status = StatusDone
	it.Artifact = artifact
}
