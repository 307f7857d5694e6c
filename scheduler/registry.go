// Package scheduler matches one-shot positioning requests against an
// asynchronous sample stream and drives the provider's power state from the
// aggregate demand of pending requests and continuous-tracking subscribers.
package scheduler

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/positioning"
)

// A Result is the outcome of a one-shot request: a qualifying sample, or the
// error the request resolved with. Exactly one Result is ever delivered per
// request.
type Result struct {
	Sample positioning.Sample
	Err    error
}

type status int

const (
	statusPending status = iota
	statusCompleted
	statusExpired
	statusCancelled
)

// A Request is one pending one-shot fix. ID, DesiredAccuracy, and Deadline
// are immutable after creation; the remaining fields are guarded by the
// Scheduler's mutex.
type Request struct {
	ID              uuid.UUID
	DesiredAccuracy float64
	Deadline        time.Time

	status status
	result chan Result
	timer  *DeadlineHandle
}

// ErrDuplicateID is returned by Registry.Add when the id is already
// registered. Ids come from uuid.New, so seeing this means a caller reused a
// Request.
var ErrDuplicateID = errors.New("duplicate request id")

// A Registry owns the set of pending one-shot requests. It is a pure data
// structure: it does no locking of its own (the Scheduler's mutex serializes
// all access) and never touches the provider or a timer.
type Registry struct {
	reqs map[uuid.UUID]*Request
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{reqs: map[uuid.UUID]*Request{}}
}

// Add inserts the request.
func (r *Registry) Add(req *Request) error {
	if _, ok := r.reqs[req.ID]; ok {
		return errors.Wrapf(ErrDuplicateID, "id %s", req.ID)
	}
	r.reqs[req.ID] = req
	return nil
}

// Remove deletes the request with the given id; removing an absent id is a
// no-op.
func (r *Registry) Remove(id uuid.UUID) {
	delete(r.reqs, id)
}

// Find returns the request with the given id, or nil.
func (r *Registry) Find(id uuid.UUID) *Request {
	return r.reqs[id]
}

// AllPending returns a snapshot of the pending set. Iteration order carries
// no meaning and must not affect outcomes.
func (r *Registry) AllPending() []*Request {
	all := make([]*Request, 0, len(r.reqs))
	for _, req := range r.reqs {
		all = append(all, req)
	}
	return all
}

// IsEmpty reports whether no pending requests remain.
func (r *Registry) IsEmpty() bool {
	return len(r.reqs) == 0
}

// Len returns the number of pending requests.
func (r *Registry) Len() int {
	return len(r.reqs)
}

// StrictestAccuracy returns the smallest desired accuracy among pending
// requests, used as the provider's active-mode hint. Returns 0 when empty.
func (r *Registry) StrictestAccuracy() float64 {
	var strictest float64
	for _, req := range r.reqs {
		if strictest == 0 || req.DesiredAccuracy < strictest {
			strictest = req.DesiredAccuracy
		}
	}
	return strictest
}
