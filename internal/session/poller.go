package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/syndy/cardscan/internal/extract"
	"github.com/syndy/cardscan/internal/model"
)

// poller is the cancellable handle for one enrichment poll loop. At most one
// exists per controller at a time.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startPollerLocked launches the enrichment loop for transactionID. Any
// prior poller is stopped first so exactly one runs afterward. Caller holds
// the controller lock.
func (c *Controller) startPollerLocked(transactionID string) {
	c.stopPollerLocked()

	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}
	c.poller = p

	go c.runPoller(ctx, p, gen, transactionID)
}

// stopPollerLocked cancels the active poller, if any. The loop goroutine may
// still be mid-fetch; bumping the generation here keeps its eventual result
// out of the session and keeps finishPoll silent, per the cancellation
// contract. Caller holds the lock.
func (c *Controller) stopPollerLocked() {
	if c.poller == nil {
		return
	}
	c.poller.cancel()
	c.poller = nil
	c.gen++
}

// runPoller fetches the transaction until an indicator field appears, the
// attempt budget runs out, or the context is cancelled. Ticks are strictly
// sequential: the next fetch is scheduled only after the current
// fetch-and-merge completes. Fetch errors consume budget but never abort the
// loop early; transient failures are the norm while the backend is still
// processing.
func (c *Controller) runPoller(ctx context.Context, p *poller, gen uint64, transactionID string) {
	defer close(p.done)

	log := zap.L().With(
		zap.String("session", c.sessionID()),
		zap.String("transaction", transactionID),
	)
	log.Debug("enrichment poll started",
		zap.Int("budget", c.cfg.PollBudget),
		zap.Duration("interval", c.cfg.PollInterval),
	)

	for attempt := 1; attempt <= c.cfg.PollBudget; attempt++ {
		raw, err := c.client.GetTransaction(ctx, transactionID)
		if ctx.Err() != nil {
			// Cancelled: terminate silently, no notification.
			return
		}

		if err != nil {
			log.Debug("enrichment fetch failed", zap.Int("attempt", attempt), zap.Error(err))
		} else if c.applyTick(gen, transactionID, raw) {
			c.finishPoll(gen, transactionID, true)
			return
		}

		if attempt == c.cfg.PollBudget {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.PollInterval):
		}
	}

	c.finishPoll(gen, transactionID, false)
}

// applyTick merges one poll response into the session and reports whether an
// indicator field is now present. The generation and transaction checks drop
// responses that arrive after the session moved on, so a stale fetch can
// never regress a newer session.
func (c *Controller) applyTick(gen uint64, transactionID string, raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.sess.TransactionID != transactionID {
		return false
	}

	changed := extract.MergeInsight(&c.sess.Insight, extract.Insight(raw))
	if extract.MergeContact(&c.sess.Contact, extract.Contact(raw)) {
		changed = true
	}
	if changed {
		c.sess.UpdatedAt = time.Now().UTC()
		c.persistLocked(context.Background())
	}

	return c.sess.Insight.EnrichmentComplete()
}

// finishPoll marks enrichment terminal. Budget exhaustion still completes the
// session: partial data is shown rather than blocking the user indefinitely.
func (c *Controller) finishPoll(gen uint64, transactionID string, enriched bool) {
	c.mu.Lock()
	if gen != c.gen || c.sess.TransactionID != transactionID {
		c.mu.Unlock()
		return
	}

	c.sess.Processing = model.ProcessingCompleted
	c.sess.UpdatedAt = time.Now().UTC()
	c.poller = nil
	c.persistLocked(context.Background())
	c.mu.Unlock()

	if enriched {
		notify(c.notify, LevelSuccess, "Company details found.")
	} else {
		notify(c.notify, LevelInfo, "Company enrichment timed out; showing what we have.")
	}
}

// AwaitEnrichment blocks until the active poll loop terminates or ctx
// expires. Returns immediately when no poller is running.
func (c *Controller) AwaitEnrichment(ctx context.Context) error {
	c.mu.Lock()
	p := c.poller
	c.mu.Unlock()

	if p == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.ID
}
