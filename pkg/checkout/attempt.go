package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/payment"
)

// Status is the lifecycle position of one attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusSuperseded Status = "superseded"
)

// Attempt is one end-to-end effort to create a payable session for a plan.
type Attempt struct {
	ID        uuid.UUID               `json:"id"`
	Seq       uint64                  `json:"seq"`
	PlanID    string                  `json:"plan_id"`
	Provider  payment.Provider        `json:"provider"`
	StartedAt time.Time               `json:"started_at"`
	Status    Status                  `json:"status"`
	Result    *payment.CheckoutResult `json:"result,omitempty"`
	Err       error                   `json:"-"`
}

// Snapshot is what a UI renders: the machine state, the attempt in flight
// and the outcome of the last finished one.
type Snapshot struct {
	State   State    `json:"state"`
	Current *Attempt `json:"current,omitempty"`
	Last    *Attempt `json:"last,omitempty"`
}

// Pending reports whether a checkout for planID is in flight.
func (s Snapshot) Pending(planID string) bool {
	return s.State == StatePending && s.Current != nil && s.Current.PlanID == planID
}

// Handle lets the starter of an attempt wait for its outcome.
type Handle struct {
	attempt Attempt
	done    chan struct{}
	once    sync.Once
	res     *payment.CheckoutResult
	err     error
}

func newHandle(a Attempt) *Handle {
	return &Handle{attempt: a, done: make(chan struct{})}
}

func resolvedHandle(err error) *Handle {
	h := newHandle(Attempt{Status: StatusError, Err: err})
	h.finish(nil, err)
	return h
}

// Attempt returns the attempt as it was when started.
func (h *Handle) Attempt() Attempt { return h.attempt }

// Done is closed once the attempt resolved, was superseded or cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the attempt finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*payment.CheckoutResult, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) finish(res *payment.CheckoutResult, err error) {
	h.once.Do(func() {
		h.res, h.err = res, err
		close(h.done)
	})
}
