package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syndy/cardscan/internal/model"
)

func newTestRegistry() *Registry {
	return NewRegistry(func(id string, rec *Recorder) *Controller {
		return NewController(id, &stubClient{}, rec, Config{PollInterval: time.Hour, PollBudget: 3})
	})
}

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := newTestRegistry()

	id, e := reg.Create()
	require.NotEmpty(t, id)
	require.NotNil(t, e)
	assert.Equal(t, id, e.Controller.Snapshot().ID)
	assert.Equal(t, model.StepLanding, e.Controller.Snapshot().Step)

	got, ok := reg.Get(id)
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_SessionsAreIndependent(t *testing.T) {
	reg := newTestRegistry()

	idA, a := reg.Create()
	idB, b := reg.Create()
	require.NotEqual(t, idA, idB)

	require.NoError(t, a.Controller.StartScan())
	assert.Equal(t, model.StepCapture, a.Controller.Snapshot().Step)
	assert.Equal(t, model.StepLanding, b.Controller.Snapshot().Step)
}

func TestRegistry_RemoveStopsSession(t *testing.T) {
	reg := newTestRegistry()

	id, e := reg.Create()
	require.NoError(t, e.Controller.StartScan())

	reg.Remove(id)
	_, ok := reg.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())

	// Removal resets the controller so a lingering poller cannot outlive it.
	assert.Equal(t, model.StepLanding, e.Controller.Snapshot().Step)

	// Removing twice is a no-op.
	reg.Remove(id)
}
