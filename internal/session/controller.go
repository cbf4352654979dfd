// Package session owns the selected image and the request state of one
// classification session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/ecosort/internal/classifier"
	"github.com/lehigh-university-libraries/ecosort/internal/selection"
)

var (
	ErrClosed = errors.New("session closed")
	// ErrBusy is returned by Submit while a superseded request is still
	// winding down after its image was replaced. It is not a failure; the
	// caller should retry shortly.
	ErrBusy = errors.New("please wait, the previous request is still finishing")
	// ErrSuperseded is returned by Submission.Wait when the image changed
	// before the request resolved.
	ErrSuperseded = errors.New("submission superseded by a newer selection")
)

// Classifier is the subset of classifier.Client the controller needs.
type Classifier interface {
	Classify(ctx context.Context, img *selection.Image) (*classifier.Result, error)
}

// Controller drives Idle -> Submitting -> Succeeded|Failed and back. At most
// one Classify call is in flight at any time.
type Controller struct {
	client     Classifier
	logger     *slog.Logger
	previewDir string

	mu         sync.Mutex
	selected   *selection.Image
	state      State
	generation uint64
	inflight   *Submission
	observers  []observer
	nextID     int
	closed     bool
	// seq counts state changes. A notification is delivered only while
	// its seq is still the latest.
	seq uint64

	// notifyMu serializes observer calls so they see transitions in order.
	notifyMu sync.Mutex
}

type observer struct {
	id int
	fn func(State)
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPreviewDir sets where preview thumbnails are written.
func WithPreviewDir(dir string) Option {
	return func(c *Controller) {
		c.previewDir = dir
	}
}

func New(client Classifier, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		logger: slog.Default(),
		state:  Idle{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current request state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Selected returns the current image, or nil.
func (c *Controller) Selected() *selection.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Subscribe registers fn to be called after every transition. Calls are
// serialized and never deliver a state that has already been replaced, so
// an observer may miss an intermediate state but never sees them out of
// order. fn must not call Select or Submit. The returned func removes it.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.observers = append(c.observers, observer{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Select replaces the current image with the candidate and resets the state
// to Idle. A nil candidate is a dismissed picker and changes nothing.
// Selecting the file that is already selected keeps its preview.
func (c *Controller) Select(cand *selection.Candidate) error {
	if cand == nil {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.selected.Matches(cand) {
		notify := c.resetLocked()
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("Image reselected", "filename", cand.Filename)
		notify(state)
		return nil
	}
	c.mu.Unlock()

	img, err := selection.Select(cand, c.previewDir)
	if err != nil {
		c.logger.Warn("Image rejected", "filename", cand.Filename, "err", err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.releasePreview(img)
		return ErrClosed
	}
	previous := c.selected
	c.selected = img
	notify := c.resetLocked()
	state := c.state
	c.mu.Unlock()

	c.releasePreview(previous)
	c.logger.Info("Image selected",
		"filename", img.Filename,
		"media_type", img.MediaType,
		"width", img.Width,
		"height", img.Height,
		"preview", img.Preview.Path())
	notify(state)
	return nil
}

// resetLocked moves to Idle and invalidates any in-flight submission. It
// returns the notifier to call once the lock is released.
func (c *Controller) resetLocked() func(State) {
	c.generation++
	if c.inflight != nil {
		c.inflight.cancel()
	}
	c.state = Idle{}
	return c.notifierLocked()
}

// Submit starts classifying the selected image. While a request is in
// flight it returns that submission and starts nothing.
func (c *Controller) Submit(ctx context.Context) (*Submission, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.inflight != nil {
		sub := c.inflight
		current := sub.generation == c.generation
		c.mu.Unlock()
		if !current {
			return nil, ErrBusy
		}
		c.logger.Debug("Submit ignored, request already in flight", "submission_id", sub.id)
		return sub, nil
	}
	if c.selected == nil {
		c.mu.Unlock()
		c.logger.Debug("Submit rejected, no image selected")
		return nil, classifier.NoImageError()
	}

	c.generation++
	reqCtx, cancel := context.WithCancel(ctx)
	sub := &Submission{
		id:         uuid.NewString(),
		generation: c.generation,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	img := c.selected
	c.inflight = sub
	c.state = Submitting{ID: sub.id}
	state := c.state
	notify := c.notifierLocked()
	c.mu.Unlock()

	c.logger.Info("Submitting image", "submission_id", sub.id, "filename", img.Filename)
	notify(state)

	go c.run(reqCtx, sub, img)
	return sub, nil
}

func (c *Controller) run(ctx context.Context, sub *Submission, img *selection.Image) {
	defer sub.cancel()
	result, err := c.client.Classify(ctx, img)
	c.resolve(sub, outcome(sub.id, result, err))
}

func (c *Controller) resolve(sub *Submission, next State) {
	c.mu.Lock()
	if c.inflight == sub {
		c.inflight = nil
	}
	current := !c.closed && sub.generation == c.generation
	notify := func(State) {}
	if current {
		c.state = next
		notify = c.notifierLocked()
	}
	c.mu.Unlock()

	sub.outcome = next
	sub.stale = !current

	if current {
		c.logger.Info("Submission resolved", "submission_id", sub.id, "phase", next.Phase().String())
		notify(next)
	} else {
		c.logger.Info("Dropping stale submission result", "submission_id", sub.id, "phase", next.Phase().String())
	}
	close(sub.done)
}

// notifierLocked records a state change and returns the func that delivers
// it. Delivery stops as soon as a later change has been recorded.
func (c *Controller) notifierLocked() func(State) {
	c.seq++
	seq := c.seq
	fns := make([]func(State), 0, len(c.observers))
	for _, o := range c.observers {
		fns = append(fns, o.fn)
	}
	return func(s State) {
		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		for _, fn := range fns {
			if !c.latest(seq) {
				return
			}
			fn(s)
		}
	}
}

func (c *Controller) latest(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq == seq
}

// Close cancels any in-flight request and releases the preview. The
// controller cannot be used afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	if c.inflight != nil {
		c.inflight.cancel()
	}
	img := c.selected
	c.selected = nil
	c.state = Idle{}
	c.seq++
	c.mu.Unlock()

	if img != nil {
		return img.Preview.Release()
	}
	return nil
}

func (c *Controller) releasePreview(img *selection.Image) {
	if img == nil {
		return
	}
	if err := img.Preview.Release(); err != nil {
		c.logger.Warn("Failed to release preview", "err", err)
	}
}

// Submission is the handle for one classify request.
type Submission struct {
	id         string
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}

	// written before done is closed
	outcome State
	stale   bool
}

func (s *Submission) ID() string { return s.id }

// Done is closed once the request has resolved.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Cancel aborts the request. If the submission is still current the
// session ends in Failed with classifier.KindCanceled.
func (s *Submission) Cancel() { s.cancel() }

// Wait blocks until the request resolves or ctx ends. A superseded
// submission returns its own outcome together with ErrSuperseded.
func (s *Submission) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.done:
		if s.stale {
			return s.outcome, ErrSuperseded
		}
		return s.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
