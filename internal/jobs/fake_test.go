package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/provider"
)

// fakeProvider replays a scripted status sequence per job. Once the script
// is exhausted the last entry repeats. An entry with a non-nil err is
// returned as a failed fetch.
type fakeProvider struct {
	mu sync.Mutex

	scripts map[string][]step
	fetches map[string]int
	places  map[string][]core.PlaceResult
	jobs    []core.ScrapeJob

	created   []core.SearchParams
	createErr error
	pageCalls int
	enriched  []provider.EnrichRequest

	// maxLimit, when set, caps the page size like a provider enforcing its
	// own maximum; counts overrides the reported result total per job.
	maxLimit int
	counts   map[string]int

	// block, when set, is received from before GetJob returns
	block chan struct{}
}

type step struct {
	status core.JobStatus
	err    error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		scripts: make(map[string][]step),
		fetches: make(map[string]int),
		places:  make(map[string][]core.PlaceResult),
	}
}

func (f *fakeProvider) script(id string, steps ...step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = steps
}

func statuses(ss ...core.JobStatus) []step {
	out := make([]step, len(ss))
	for i, s := range ss {
		out[i] = step{status: s}
	}
	return out
}

func (f *fakeProvider) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

func (f *fakeProvider) CreateJob(_ context.Context, params core.SearchParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, params)
	return fmt.Sprintf("job-%d", len(f.created)), nil
}

func (f *fakeProvider) GetJob(ctx context.Context, id string) (core.JobSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.JobSnapshot{}, err
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return core.JobSnapshot{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	script, ok := f.scripts[id]
	if !ok {
		return core.JobSnapshot{}, &provider.Error{Kind: provider.KindNotFound, Op: "GET /v1/jobs/" + id}
	}
	n := f.fetches[id]
	f.fetches[id] = n + 1
	if n >= len(script) {
		n = len(script) - 1
	}
	st := script[n]
	if st.err != nil {
		return core.JobSnapshot{}, st.err
	}
	progress := 0
	if st.status == core.JobCompleted {
		progress = 100
	}
	snap := core.JobSnapshot{ID: id, Status: st.status, Progress: progress, ObservedAt: time.Now()}
	if st.status == core.JobFailed {
		snap.Error = "provider quota exceeded"
	}
	return snap, nil
}

func (f *fakeProvider) ListJobs(_ context.Context, limit int) ([]core.ScrapeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit < len(f.jobs) {
		return append([]core.ScrapeJob(nil), f.jobs[:limit]...), nil
	}
	return append([]core.ScrapeJob(nil), f.jobs...), nil
}

func (f *fakeProvider) ListPlaces(_ context.Context, id string, limit, offset int) ([]core.PlaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	if f.maxLimit > 0 {
		limit = min(limit, f.maxLimit)
	}
	all := f.places[id]
	if offset >= len(all) {
		return []core.PlaceResult{}, nil
	}
	end := min(offset+limit, len(all))
	return append([]core.PlaceResult(nil), all[offset:end]...), nil
}

func (f *fakeProvider) CountPlaces(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.counts[id]; ok {
		return n, nil
	}
	return len(f.places[id]), nil
}

func (f *fakeProvider) ExportURL(id, format string) (string, error) {
	return "http://provider.test/v1/export/" + id + "?format=" + format, nil
}

func (f *fakeProvider) EnrichContacts(_ context.Context, req provider.EnrichRequest) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enriched = append(f.enriched, req)
	return []string{"info@" + req.Domain}, nil
}

// recordingImporter stands in for core.Service.
type recordingImporter struct {
	mu      sync.Mutex
	calls   int
	records [][]core.Record
	release chan struct{}
	err     error
}

func (r *recordingImporter) ImportRecords(ctx context.Context, source core.ImportSource, reference string, recs []core.Record, _ core.ProgressFunc) (*core.ImportOutcome, error) {
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.records = append(r.records, recs)
	if r.err != nil {
		return nil, r.err
	}
	res := core.NewBatchImporter(acceptAll{}).Import(ctx, recs)
	return &core.ImportOutcome{
		Run:    core.ImportRun{ID: "run-1", Source: source, Reference: reference, Inserted: res.Inserted, Failed: res.Failed},
		Result: res,
	}, nil
}

type acceptAll struct{}

func (acceptAll) CreateRecord(_ context.Context, rec core.Record) (core.Record, error) {
	return rec, nil
}

type terminalRecorder struct {
	mu    sync.Mutex
	snaps []core.JobSnapshot
}

func (t *terminalRecorder) JobTerminal(_ context.Context, snap core.JobSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snaps = append(t.snaps, snap)
}

func (t *terminalRecorder) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.snaps)
}

var errFlaky = errors.New("connection reset by peer")
