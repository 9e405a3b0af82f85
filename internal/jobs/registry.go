package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/crmingest/internal/core"
)

// ImportSummary is the outcome of importing one job's results.
type ImportSummary struct {
	JobID      string          `json:"job_id"`
	RunID      string          `json:"run_id,omitempty"`
	Inserted   int             `json:"inserted"`
	Failed     int             `json:"failed"`
	Total      int             `json:"total"`
	Errors     []core.RowError `json:"errors"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Entry is the registry's view of one job. Returned entries are copies.
type Entry struct {
	ID string `json:"id"`

	// Snapshot is nil until the first status observation.
	Snapshot *core.JobSnapshot `json:"snapshot,omitempty"`

	// Tracked is set for jobs created or watched by this process, as opposed
	// to jobs only seen in a provider listing.
	Tracked bool `json:"tracked"`

	PageOffset int `json:"page_offset"`
	PageCount  int `json:"page_count"`

	Importing  bool           `json:"importing"`
	LastImport *ImportSummary `json:"last_import,omitempty"`

	Watching bool `json:"watching"`

	cancel   context.CancelFunc
	watchGen uint64
}

// Registry holds one Entry per job id. It is the only state shared between
// poll loops.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	gen     uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

func (r *Registry) entry(id string) *Entry {
	e, ok := r.entries[id]
	if !ok {
		e = &Entry{ID: id}
		r.entries[id] = e
	}
	return e
}

func (e *Entry) clone() Entry {
	cp := *e
	cp.cancel = nil
	if e.Snapshot != nil {
		s := *e.Snapshot
		cp.Snapshot = &s
	}
	if e.LastImport != nil {
		li := *e.LastImport
		cp.LastImport = &li
	}
	return cp
}

// Track registers a locally created job. Its status stays unset until the
// first poll.
func (r *Registry) Track(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(id).Tracked = true
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Snapshot returns the last observed status of id.
func (r *Registry) Snapshot(id string) (core.JobSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Snapshot == nil {
		return core.JobSnapshot{}, false
	}
	return *e.Snapshot, true
}

// Observe stores snap and reports whether it is the job's first terminal
// observation. A terminal status is never replaced by a non-terminal one,
// since a listing fetched before a poll may arrive after it. For jobs only
// seen in listings the first observation never counts as a transition.
func (r *Registry) Observe(snap core.JobSnapshot) (becameTerminal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(snap.ID)
	prev := e.Snapshot
	if prev != nil && prev.Status.Terminal() && !snap.Status.Terminal() {
		return false
	}

	s := snap
	e.Snapshot = &s

	if !snap.Status.Terminal() {
		return false
	}
	if prev == nil {
		return e.Tracked
	}
	return !prev.Status.Terminal()
}

// RecordPage remembers the last result page fetched for id.
func (r *Registry) RecordPage(id string, offset, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(id)
	e.PageOffset = offset
	e.PageCount = count
}

// BeginImport marks an import of id's results as running. It fails with
// ErrImportInFlight if one already is.
func (r *Registry) BeginImport(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(id)
	if e.Importing {
		return ErrImportInFlight
	}
	e.Importing = true
	return nil
}

// EndImport clears the in-flight flag. A nil summary keeps the previous one.
func (r *Registry) EndImport(id string, summary *ImportSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(id)
	e.Importing = false
	if summary != nil {
		s := *summary
		e.LastImport = &s
	}
}

// StartWatch attaches a poll loop's cancel func to id. It returns false if a
// loop is already attached. The returned generation must be passed to
// EndWatch.
func (r *Registry) StartWatch(id string, cancel context.CancelFunc) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(id)
	if e.cancel != nil {
		return 0, false
	}
	r.gen++
	e.Tracked = true
	e.Watching = true
	e.cancel = cancel
	e.watchGen = r.gen
	return r.gen, true
}

// EndWatch detaches the poll loop of generation gen, if still attached.
func (r *Registry) EndWatch(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.watchGen != gen {
		return
	}
	e.cancel = nil
	e.Watching = false
	e.watchGen = 0
}

// Forget cancels id's poll loop, if any, and drops the entry.
func (r *Registry) Forget(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if ok && e.cancel != nil {
		e.cancel()
	}
	return ok
}

// Len returns the number of known jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Watching returns the number of jobs with an attached poll loop.
func (r *Registry) Watching() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.cancel != nil {
			n++
		}
	}
	return n
}

// Entries returns copies of all entries ordered by id.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
