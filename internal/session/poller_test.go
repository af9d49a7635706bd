package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syndy/cardscan/internal/model"
)

func captureToResult(t *testing.T, c *Controller) {
	t.Helper()
	require.NoError(t, c.StartScan())
	require.NoError(t, c.SubmitCapture(context.Background(), []byte("img")))
	require.Equal(t, model.StepResult, c.Snapshot().Step)
}

func TestPoller_StopsWhenIndicatorArrives(t *testing.T) {
	var ticks atomic.Int32
	client := &stubClient{
		transactionFunc: func(_ context.Context, id string) ([]byte, error) {
			ticks.Add(1)
			return []byte(`{"company_data":{"industry":"Software"}}`), nil
		},
	}
	rec := &Recorder{}
	c := NewController("s1", client, rec, Config{PollInterval: time.Millisecond, PollBudget: 30})
	t.Cleanup(c.Reset)

	captureToResult(t, c)
	require.NoError(t, c.AwaitEnrichment(context.Background()))

	sess := c.Snapshot()
	assert.Equal(t, "Software", sess.Insight.Industry)
	assert.Equal(t, model.ProcessingCompleted, sess.Processing)
	assert.Equal(t, int32(1), ticks.Load(), "indicator on the first tick stops polling")

	notes := rec.Notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, LevelSuccess, notes[len(notes)-1].Level)
}

func TestPoller_BudgetTermination(t *testing.T) {
	const budget = 5

	var ticks atomic.Int32
	client := &stubClient{
		transactionFunc: func(context.Context, string) ([]byte, error) {
			ticks.Add(1)
			return []byte(`{}`), nil
		},
	}
	rec := &Recorder{}
	c := NewController("s1", client, rec, Config{PollInterval: time.Millisecond, PollBudget: budget})
	t.Cleanup(c.Reset)

	captureToResult(t, c)
	require.NoError(t, c.AwaitEnrichment(context.Background()))

	sess := c.Snapshot()
	assert.Equal(t, int32(budget), ticks.Load(), "poller stops after exactly the budgeted attempts")
	assert.Equal(t, model.ProcessingCompleted, sess.Processing, "budget exhaustion still completes")
	assert.True(t, sess.Insight.Empty())

	notes := rec.Notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, LevelInfo, notes[len(notes)-1].Level, "timeout is informational, not an error")
}

func TestPoller_TransientErrorsDoNotAbort(t *testing.T) {
	var ticks atomic.Int32
	client := &stubClient{
		transactionFunc: func(context.Context, string) ([]byte, error) {
			if ticks.Add(1) < 3 {
				return nil, eris.New("connection reset by peer")
			}
			return []byte(`{"company_data":{"revenue":"$9M"}}`), nil
		},
	}
	c := NewController("s1", client, &Recorder{}, Config{PollInterval: time.Millisecond, PollBudget: 30})
	t.Cleanup(c.Reset)

	captureToResult(t, c)
	require.NoError(t, c.AwaitEnrichment(context.Background()))

	sess := c.Snapshot()
	assert.Equal(t, "$9M", sess.Insight.Revenue)
	assert.Equal(t, model.ProcessingCompleted, sess.Processing)
	assert.Equal(t, int32(3), ticks.Load())
}

func TestPoller_SingleActivePoller(t *testing.T) {
	c := NewController("s1", &stubClient{}, &Recorder{}, Config{PollInterval: time.Hour, PollBudget: 30})
	t.Cleanup(c.Reset)

	captureToResult(t, c)

	c.mu.Lock()
	first := c.poller
	require.NotNil(t, first)
	// Re-entering result restarts polling; the prior loop must be stopped.
	c.startPollerLocked(c.sess.TransactionID)
	second := c.poller
	c.mu.Unlock()

	assert.NotSame(t, first, second)

	select {
	case <-first.done:
	case <-time.After(time.Second):
		t.Fatal("first poller still running after restart")
	}
}

func TestPoller_CancelledSilently(t *testing.T) {
	rec := &Recorder{}
	c := NewController("s1", &stubClient{}, rec, Config{PollInterval: time.Hour, PollBudget: 30})
	t.Cleanup(c.Reset)

	captureToResult(t, c)
	before := len(rec.Notifications())

	require.NoError(t, c.Advance())

	assert.Nil(t, c.poller)
	assert.Equal(t, model.StepSelfie, c.Snapshot().Step)
	// Cancellation produces no notification.
	assert.Len(t, rec.Notifications(), before)
}

func TestPoller_StaleFetchNotMergedAfterReset(t *testing.T) {
	fetching := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	client := &stubClient{
		transactionFunc: func(context.Context, string) ([]byte, error) {
			if calls.Add(1) == 1 {
				close(fetching)
				<-release
			}
			return []byte(`{"company_data":{"industry":"Stale"}}`), nil
		},
	}
	c := NewController("s1", client, &Recorder{}, Config{PollInterval: time.Millisecond, PollBudget: 30})
	t.Cleanup(c.Reset)

	captureToResult(t, c)
	<-fetching

	c.Reset()
	close(release)

	// Give the stale goroutine a moment to (incorrectly) apply its result.
	time.Sleep(20 * time.Millisecond)

	sess := c.Snapshot()
	assert.True(t, sess.Insight.Empty(), "stale fetch must not reach the reset session")
	assert.Equal(t, model.ProcessingPending, sess.Processing)
}

func TestPoller_AwaitEnrichmentNoPoller(t *testing.T) {
	c := NewController("s1", &stubClient{}, &Recorder{}, testConfig())
	assert.NoError(t, c.AwaitEnrichment(context.Background()))
}

func TestPoller_AwaitEnrichmentContextCancel(t *testing.T) {
	c := NewController("s1", &stubClient{}, &Recorder{}, Config{PollInterval: time.Hour, PollBudget: 30})
	t.Cleanup(c.Reset)

	captureToResult(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AwaitEnrichment(ctx), context.DeadlineExceeded)
}
