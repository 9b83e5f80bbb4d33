package dispatch

import (
	"sync"
	"time"
)

// Run is the handle for one in-flight dispatch iteration. Done is closed
// when the iteration's goroutine exits for any reason.
type Run struct {
	CampaignID int
	StartedAt  time.Time
	done       chan struct{}
}

// Done returns a channel closed when the run finishes.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Registry tracks which campaigns currently have a dispatch iteration in
// flight. A run is registered before its goroutine launches and removed
// when the goroutine exits, so a campaign can never have two concurrent
// iterations regardless of how operator commands race.
type Registry struct {
	mu   sync.Mutex
	runs map[int]*Run
}

func NewRegistry() *Registry {
	return &Registry{runs: map[int]*Run{}}
}

// Add registers a run for the campaign. Returns false if one is already
// in flight.
func (r *Registry) Add(campaignID int) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[campaignID]; exists {
		return nil, false
	}
	run := &Run{
		CampaignID: campaignID,
		StartedAt:  time.Now(),
		done:       make(chan struct{}),
	}
	r.runs[campaignID] = run
	return run, true
}

// Remove deregisters the campaign's run and closes its done channel.
func (r *Registry) Remove(campaignID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[campaignID]; ok {
		close(run.done)
		delete(r.runs, campaignID)
	}
}

// Active reports whether the campaign has a dispatch iteration in flight.
func (r *Registry) Active(campaignID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[campaignID]
	return ok
}
