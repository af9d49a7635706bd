package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CollectsInOrder(t *testing.T) {
	rec := &Recorder{}
	notify(rec, LevelInfo, "first")
	notify(rec, LevelError, "second")
	notify(rec, LevelSuccess, "third")

	notes := rec.Notifications()
	require.Len(t, notes, 3)
	assert.Equal(t, "first", notes[0].Message)
	assert.Equal(t, LevelError, notes[1].Level)
	assert.Equal(t, "third", notes[2].Message)
	assert.False(t, notes[2].At.IsZero())

	// Notifications returns a copy; mutating it leaves the recorder intact.
	notes[0].Message = "mutated"
	assert.Equal(t, "first", rec.Notifications()[0].Message)
}

func TestRecorder_Clear(t *testing.T) {
	rec := &Recorder{}
	notify(rec, LevelInfo, "one")
	rec.Clear()
	assert.Empty(t, rec.Notifications())
}

func TestMultiNotifier_FansOut(t *testing.T) {
	a := &Recorder{}
	b := &Recorder{}
	m := MultiNotifier(a, b)

	notify(m, LevelSuccess, "done")

	require.Len(t, a.Notifications(), 1)
	require.Len(t, b.Notifications(), 1)
	assert.Equal(t, "done", b.Notifications()[0].Message)
}

func TestNotify_NilNotifierIsSafe(t *testing.T) {
	notify(nil, LevelInfo, "dropped")
}
