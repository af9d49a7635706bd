package session

import (
	"sync"

	"github.com/google/uuid"
)

// Entry pairs a live controller with its per-session notification recorder.
type Entry struct {
	Controller *Controller
	Recorder   *Recorder
}

// Registry tracks live controllers by session id for the HTTP API. Each
// controller gets its own Recorder so notifications can be polled per
// session.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	build   func(id string, rec *Recorder) *Controller
}

// NewRegistry creates a registry that builds controllers with the given
// factory.
func NewRegistry(build func(id string, rec *Recorder) *Controller) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		build:   build,
	}
}

// Create registers a new session and returns its id and entry.
func (r *Registry) Create() (string, *Entry) {
	id := uuid.New().String()
	rec := &Recorder{}

	e := &Entry{
		Controller: r.build(id, rec),
		Recorder:   rec,
	}

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
	return id, e
}

// Get returns the entry for a session id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// Remove discards a session, resetting its controller so any poller stops.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		e.Controller.Reset()
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
