package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/models"
)

// Handle is the session-scoped reference to a job, stored under an operation key
type Handle struct {
	key       string
	job       *Job
	createdAt time.Time
}

// Key returns the operation key the handle is stored under
func (h *Handle) Key() string {
	return h.key
}

// Job returns the referenced job
func (h *Handle) Job() *Job {
	return h.job
}

// HandleInfo is a listing entry for a registry
type HandleInfo struct {
	Key       string           `json:"key"`
	JobID     string           `json:"job_id"`
	Kind      string           `json:"kind"`
	Target    string           `json:"target"`
	State     models.JobState  `json:"state"`
	Stage     models.StageInfo `json:"stage"`
	StartedAt time.Time        `json:"started_at"`
}

// Registry maps operation keys to at most one handle. One registry belongs to
// one session and is passed explicitly; there is no global registry.
type Registry struct {
	mu         sync.Mutex
	handles    map[string]*Handle
	maxRunning int
	logger     arbor.ILogger
}

// NewRegistry creates an empty registry. maxRunning bounds concurrently running
// jobs across all keys (0 = unbounded).
func NewRegistry(logger arbor.ILogger, maxRunning int) *Registry {
	return &Registry{
		handles:    make(map[string]*Handle),
		maxRunning: maxRunning,
		logger:     logger,
	}
}

// TryStart atomically checks key and, if no live job holds it, creates one via
// factory and stores its handle. If a running job holds the key the existing
// handle is returned with ErrAlreadyRunning and factory is not called.
// factory runs under the registry lock and must not block.
func (r *Registry) TryStart(key string, factory func() *Job) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.handles[key]
	if ok && existing.job.IsRunning() {
		return existing, ErrAlreadyRunning
	}

	if r.maxRunning > 0 && r.runningLocked() >= r.maxRunning {
		return nil, ErrSessionLimit
	}

	if ok {
		// Finished but never acknowledged: its outcome is dropped in favour of the new start
		r.logger.Debug().
			Str("key", key).
			Str("job_id", existing.job.id).
			Msg("Replacing unacknowledged finished job")
	}

	job := factory()
	if job == nil {
		return nil, fmt.Errorf("%w: factory returned no job for key %s", ErrInvalidState, key)
	}

	h := &Handle{key: key, job: job, createdAt: time.Now()}
	r.handles[key] = h
	return h, nil
}

// Get returns the handle stored under key
func (r *Registry) Get(key string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	return h, ok
}

// Acknowledge removes the handle under key. The job must be terminal.
func (r *Registry) Acknowledge(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[key]
	if !ok {
		return ErrNotFound
	}
	if h.job.IsRunning() {
		return fmt.Errorf("%w: cannot acknowledge running job %s under key %s", ErrInvalidState, h.job.id, key)
	}
	delete(r.handles, key)
	return nil
}

// acknowledgeHandle removes h only if it is still the handle stored under its
// key; a newer job started under the same key is left alone.
func (r *Registry) acknowledgeHandle(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.handles[h.key]
	if !ok || current != h {
		return false
	}
	delete(r.handles, h.key)
	return true
}

// Clear forgets every handle. Running jobs are not cancelled.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.handles)
	r.handles = make(map[string]*Handle)
	return n
}

// ReapIdle drops finished handles idle for longer than maxIdle. Running jobs are kept.
func (r *Registry) ReapIdle(maxIdle time.Duration, now time.Time) int {
	if maxIdle <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for key, h := range r.handles {
		if h.job.IsRunning() {
			continue
		}
		if now.Sub(h.job.IdleSince()) > maxIdle {
			delete(r.handles, key)
			reaped++
		}
	}
	return reaped
}

// Running returns the number of running jobs
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runningLocked()
}

func (r *Registry) runningLocked() int {
	n := 0
	for _, h := range r.handles {
		if h.job.IsRunning() {
			n++
		}
	}
	return n
}

// Len returns the number of stored handles
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// List returns a snapshot of all handles ordered by key
func (r *Registry) List() []HandleInfo {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	infos := make([]HandleInfo, 0, len(handles))
	for _, h := range handles {
		snap := h.job.Snapshot()
		infos = append(infos, HandleInfo{
			Key:       h.key,
			JobID:     h.job.id,
			Kind:      h.job.meta.Kind,
			Target:    h.job.meta.Target,
			State:     snap.State,
			Stage:     snap.Stage,
			StartedAt: snap.StartedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}
