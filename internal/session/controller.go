// Package session implements the scan-to-meeting workflow: a step state
// machine per session, the background enrichment poller, and the notification
// channel consumed by the presentation layer.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/syndy/cardscan/internal/extract"
	"github.com/syndy/cardscan/internal/model"
	"github.com/syndy/cardscan/internal/store"
	"github.com/syndy/cardscan/pkg/scanium"
)

// Rejections surfaced by guarded entry points. Wrapped with context by the
// controller; check with errors.Is.
var (
	ErrInvalidTransition = errors.New("invalid step transition")
	ErrActionInFlight    = errors.New("action already in flight")
	ErrNoTransaction     = errors.New("session has no transaction")
)

// Config tunes the enrichment poll loop.
type Config struct {
	// PollInterval is the fixed delay between enrichment poll ticks.
	PollInterval time.Duration
	// PollBudget is the maximum number of poll attempts per transaction.
	PollBudget int
}

// DefaultConfig returns the production poll settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		PollBudget:   30,
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollBudget <= 0 {
		c.PollBudget = 30
	}
	return c
}

// Controller owns one scan session and drives it through the workflow. All
// entry points are safe for concurrent use; long-running network calls are
// made outside the lock with per-action re-entrancy guards.
type Controller struct {
	client scanium.Client
	notify Notifier
	cfg    Config
	// snapshots is optional; persistence is best-effort and never blocks
	// the workflow.
	snapshots store.Store

	mu       sync.Mutex
	sess     model.Session
	captured []byte

	uploading  bool
	selfieBusy bool
	scheduling bool

	poller *poller
	// gen increments on every poller start and reset, fencing off merges
	// from pollers that have since been cancelled.
	gen uint64
}

// NewController creates a controller for a fresh session.
func NewController(id string, client scanium.Client, notifier Notifier, cfg Config, opts ...ControllerOption) *Controller {
	c := &Controller{
		client: client,
		notify: notifier,
		cfg:    cfg.withDefaults(),
		sess:   model.NewSession(id),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ControllerOption configures optional collaborators.
type ControllerOption func(*Controller)

// WithSnapshots persists session snapshots to the given store after every
// transition.
func WithSnapshots(s store.Store) ControllerOption {
	return func(c *Controller) {
		c.snapshots = s
	}
}

// Snapshot returns a copy of the current session view model.
func (c *Controller) Snapshot() model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// StartScan moves the session from landing to capture.
func (c *Controller) StartScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Step != model.StepLanding {
		return eris.Wrapf(ErrInvalidTransition, "start scan from %s", c.sess.Step)
	}
	c.setStepLocked(model.StepCapture)
	return nil
}

// CancelCapture abandons the capture screen and returns to landing,
// releasing any buffered image.
func (c *Controller) CancelCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Step != model.StepCapture {
		return eris.Wrapf(ErrInvalidTransition, "cancel capture from %s", c.sess.Step)
	}
	c.captured = nil
	c.setStepLocked(model.StepLanding)
	return nil
}

// SubmitCapture uploads a captured card image. On success the session moves
// to result with the initial extraction applied and an enrichment poller
// running. On failure it returns to capture with the error retained for the
// next attempt.
func (c *Controller) SubmitCapture(ctx context.Context, image []byte) error {
	c.mu.Lock()
	if c.sess.Step != model.StepCapture {
		step := c.sess.Step
		c.mu.Unlock()
		return eris.Wrapf(ErrInvalidTransition, "submit capture from %s", step)
	}
	if c.uploading {
		c.mu.Unlock()
		return eris.Wrap(ErrActionInFlight, "card upload")
	}
	c.uploading = true
	c.captured = image
	c.sess.Error = ""
	c.setStepLocked(model.StepProcessing)
	gen := c.gen
	c.mu.Unlock()

	res, err := c.client.UploadCard(ctx, image, "card.jpg")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploading = false

	if gen != c.gen || c.sess.Step != model.StepProcessing {
		// Session was reset while the upload was in flight; drop the result.
		return eris.Wrap(ErrInvalidTransition, "session reset during upload")
	}

	if err != nil {
		c.sess.Error = "card upload failed"
		c.setStepLocked(model.StepCapture)
		notify(c.notify, LevelError, "Card upload failed. Please try again.")
		return eris.Wrap(err, "submit capture")
	}

	c.sess.TransactionID = res.TransactionID
	c.sess.Contact = extract.Contact(res.Raw)
	c.sess.Insight = extract.Insight(res.Raw)
	c.sess.Processing = model.ProcessingActive
	c.setStepLocked(model.StepResult)

	c.startPollerLocked(res.TransactionID)

	if c.sess.Contact.Empty() && c.sess.Insight.Empty() {
		notify(c.notify, LevelInfo, "Card scanned, but no information could be extracted.")
	} else {
		notify(c.notify, LevelSuccess, "Card scanned.")
	}
	return nil
}

// Advance moves the session from result to selfie, stopping the enrichment
// poller if it is still running.
func (c *Controller) Advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Step != model.StepResult {
		return eris.Wrapf(ErrInvalidTransition, "advance from %s", c.sess.Step)
	}
	if c.sess.TransactionID == "" {
		return eris.Wrap(ErrNoTransaction, "advance")
	}
	c.stopPollerLocked()
	c.setStepLocked(model.StepSelfie)
	return nil
}

// SubmitSelfie uploads a selfie for the session's transaction. On failure the
// session stays on the selfie step so the user can retry or skip.
func (c *Controller) SubmitSelfie(ctx context.Context, image []byte) error {
	c.mu.Lock()
	if err := c.requireStepTxLocked(model.StepSelfie, "submit selfie"); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.selfieBusy {
		c.mu.Unlock()
		return eris.Wrap(ErrActionInFlight, "selfie upload")
	}
	c.selfieBusy = true
	txID := c.sess.TransactionID
	gen := c.gen
	c.mu.Unlock()

	err := c.client.UploadSelfie(ctx, txID, image)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfieBusy = false

	if gen != c.gen || c.sess.Step != model.StepSelfie {
		return eris.Wrap(ErrInvalidTransition, "session reset during selfie upload")
	}

	if err != nil {
		c.sess.Error = "selfie upload failed"
		c.persistLocked(ctx)
		notify(c.notify, LevelError, "Selfie upload failed. Retry or skip.")
		return eris.Wrap(err, "submit selfie")
	}

	c.sess.Error = ""
	c.setStepLocked(model.StepEmailDraft)
	notify(c.notify, LevelSuccess, "Selfie uploaded.")
	return nil
}

// SkipSelfie moves past the selfie step without uploading.
func (c *Controller) SkipSelfie() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireStepTxLocked(model.StepSelfie, "skip selfie"); err != nil {
		return err
	}
	c.setStepLocked(model.StepEmailDraft)
	return nil
}

// OpenScheduler moves from the email draft to the meeting scheduler screen.
func (c *Controller) OpenScheduler() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireStepTxLocked(model.StepEmailDraft, "open scheduler"); err != nil {
		return err
	}
	c.setStepLocked(model.StepMeeting)
	return nil
}

// SubmitMeetingRequest triggers the downstream meeting invitation. Accepted
// from either the email draft or the scheduler step. On failure the session
// stays put so the request can be retried without re-uploading anything.
func (c *Controller) SubmitMeetingRequest(ctx context.Context) error {
	c.mu.Lock()
	if c.sess.Step != model.StepEmailDraft && c.sess.Step != model.StepMeeting {
		step := c.sess.Step
		c.mu.Unlock()
		return eris.Wrapf(ErrInvalidTransition, "submit meeting request from %s", step)
	}
	if c.sess.TransactionID == "" {
		c.mu.Unlock()
		return eris.Wrap(ErrNoTransaction, "submit meeting request")
	}
	if c.scheduling {
		c.mu.Unlock()
		return eris.Wrap(ErrActionInFlight, "meeting request")
	}
	c.scheduling = true
	txID := c.sess.TransactionID
	gen := c.gen
	c.mu.Unlock()

	err := c.client.ScheduleMeeting(ctx, txID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduling = false

	if gen != c.gen || c.sess.TransactionID != txID {
		return eris.Wrap(ErrInvalidTransition, "session reset during meeting request")
	}

	if err != nil {
		c.sess.Error = "meeting request failed"
		c.persistLocked(ctx)
		notify(c.notify, LevelError, "Could not request a meeting. Please retry.")
		return eris.Wrap(err, "submit meeting request")
	}

	c.sess.Error = ""
	c.setStepLocked(model.StepConfirmation)
	notify(c.notify, LevelSuccess, "Meeting requested.")
	return nil
}

// Reset discards the session entirely: poller cancelled, image released,
// all fields cleared, step back to landing. Also serves as the confirmation
// step's "done" action.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopPollerLocked()
	c.gen++ // fence off any network call still in flight for the old session
	c.captured = nil
	c.sess = model.NewSession(c.sess.ID)
	c.persistLocked(context.Background())
}

// requireStepTxLocked rejects an action unless the session is at the wanted
// step with a transaction present.
func (c *Controller) requireStepTxLocked(want model.Step, action string) error {
	if c.sess.Step != want {
		return eris.Wrapf(ErrInvalidTransition, "%s from %s", action, c.sess.Step)
	}
	if c.sess.TransactionID == "" {
		return eris.Wrap(ErrNoTransaction, action)
	}
	return nil
}

func (c *Controller) setStepLocked(step model.Step) {
	c.sess.Step = step
	c.sess.UpdatedAt = time.Now().UTC()
	c.persistLocked(context.Background())
}

// persistLocked writes the current snapshot best-effort. Storage problems are
// logged, never propagated into the workflow.
func (c *Controller) persistLocked(ctx context.Context) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.SaveSession(ctx, c.sess); err != nil {
		zap.L().Warn("persist session snapshot",
			zap.String("session", c.sess.ID),
			zap.Error(err),
		)
	}
}
