package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	Running Status = "running"
	Done    Status = "done"
	Failed  Status = "failed"
)

// Job is a background task launched from the web UI.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	TrackID   string    `json:"track_id,omitempty"`
	Status    Status    `json:"status"`
	Messages  []string  `json:"messages"`
	Error     string    `json:"error,omitempty"`
	Result    any       `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// changed is closed and replaced on every update
	changed chan struct{}
}

func (j *Job) finished() bool {
	return j.Status == Done || j.Status == Failed
}

type jobs struct {
	lck  sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

func newJobs() *jobs {
	return &jobs{jobs: map[string]*Job{}}
}

type task func(ctx context.Context, progress func(format string, args ...any)) (any, error)

// start runs the task in a goroutine. The job is bound to ctx and not to the
// request that created it.
func (js *jobs) start(ctx context.Context, kind, trackID string, fn task) *Job {
	j := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		TrackID:   trackID,
		Status:    Running,
		CreatedAt: time.Now().UTC(),
		changed:   make(chan struct{}),
	}
	js.lck.Lock()
	js.jobs[j.ID] = j
	cp := *j
	js.lck.Unlock()

	progress := func(format string, args ...any) {
		js.update(j.ID, func(j *Job) {
			j.Messages = append(j.Messages, fmt.Sprintf(format, args...))
		})
	}
	js.wg.Add(1)
	go func() {
		defer js.wg.Done()
		result, err := fn(ctx, progress)
		js.update(j.ID, func(j *Job) {
			if err != nil {
				j.Status = Failed
				j.Error = err.Error()
				return
			}
			j.Status = Done
			j.Result = result
		})
	}()
	return &cp
}

func (js *jobs) update(id string, fn func(*Job)) {
	js.lck.Lock()
	defer js.lck.Unlock()
	j, ok := js.jobs[id]
	if !ok {
		return
	}
	fn(j)
	close(j.changed)
	j.changed = make(chan struct{})
}

// get returns a copy of the job and a channel that is closed on its next
// update.
func (js *jobs) get(id string) (*Job, <-chan struct{}, bool) {
	js.lck.Lock()
	defer js.lck.Unlock()
	j, ok := js.jobs[id]
	if !ok {
		return nil, nil, false
	}
	cp := *j
	cp.Messages = append([]string(nil), j.Messages...)
	return &cp, j.changed, true
}

func (js *jobs) list() []*Job {
	js.lck.Lock()
	ids := make([]string, 0, len(js.jobs))
	for id := range js.jobs {
		ids = append(ids, id)
	}
	js.lck.Unlock()
	var out []*Job
	for _, id := range ids {
		if j, _, ok := js.get(id); ok {
			out = append(out, j)
		}
	}
	return out
}

func (js *jobs) wait() {
	js.wg.Wait()
}
