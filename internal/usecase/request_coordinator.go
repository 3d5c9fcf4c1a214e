package usecase

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/pkg/metrics"
)

// Outcome is how a settled request should be treated by its caller.
type Outcome int

const (
	// OutcomeCurrent means the response belongs to the newest request and may be applied.
	OutcomeCurrent Outcome = iota
	// OutcomeSuperseded means a newer request exists or this one was aborted. Drop silently.
	OutcomeSuperseded
	// OutcomeFailed means the newest request failed. Keep what is on screen and advise.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCurrent:
		return "current"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "failed"
	}
}

// Advisor surfaces per-class failures to the user.
type Advisor interface {
	Advise(class domain.RequestClass, err *apperrors.AppError)
	Resolve(class domain.RequestClass)
}

// Request is one generation of a request class.
type Request struct {
	Class domain.RequestClass
	ID    uint64
	// Ctx is cancelled when a newer request of the class cancels this one, or on settle.
	Ctx context.Context

	cancel context.CancelFunc
	coord  *RequestCoordinator
}

// Current reports whether no newer request of the same class has begun.
func (r *Request) Current() bool {
	return r.coord.Current(r.Class) == r.ID
}

type classState struct {
	current uint64
	cancel  context.CancelFunc
	busy    bool
}

// RequestCoordinator hands out generation ids per request class and decides
// whether a completed response may be applied.
type RequestCoordinator struct {
	advisor Advisor
	logger  *zap.Logger

	mu      sync.Mutex
	classes map[domain.RequestClass]*classState
}

func NewRequestCoordinator(advisor Advisor, logger *zap.Logger) *RequestCoordinator {
	return &RequestCoordinator{
		advisor: advisor,
		logger:  logger,
		classes: make(map[domain.RequestClass]*classState),
	}
}

func (c *RequestCoordinator) state(class domain.RequestClass) *classState {
	st, ok := c.classes[class]
	if !ok {
		st = &classState{}
		c.classes[class] = st
	}
	return st
}

// Begin starts a new generation of class. The previous request is stale as
// soon as Begin returns; cancelPrevious additionally aborts its context.
func (c *RequestCoordinator) Begin(ctx context.Context, class domain.RequestClass) (*Request, func()) {
	rctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	st := c.state(class)
	st.current++
	prev := st.cancel
	st.cancel = cancel
	st.busy = true
	req := &Request{Class: class, ID: st.current, Ctx: rctx, cancel: cancel, coord: c}
	c.mu.Unlock()

	metrics.RequestsStarted.WithLabelValues(string(class)).Inc()

	cancelPrevious := func() {
		if prev != nil {
			prev()
		}
	}
	return req, cancelPrevious
}

// Settle classifies a completed request. Callers apply the response only for
// OutcomeCurrent and must hold their own state lock across Settle and apply.
func (c *RequestCoordinator) Settle(req *Request, err error) Outcome {
	defer req.cancel()

	c.mu.Lock()
	st := c.state(req.Class)
	if req.ID != st.current {
		c.mu.Unlock()
		metrics.RequestsSuperseded.WithLabelValues(string(req.Class)).Inc()
		return OutcomeSuperseded
	}
	st.busy = false
	st.cancel = nil
	c.mu.Unlock()

	switch {
	case err == nil:
		if c.advisor != nil {
			c.advisor.Resolve(req.Class)
		}
		return OutcomeCurrent
	case errors.Is(err, context.Canceled) || errors.Is(err, apperrors.ErrSuperseded):
		metrics.RequestsSuperseded.WithLabelValues(string(req.Class)).Inc()
		return OutcomeSuperseded
	}

	metrics.RequestsFailed.WithLabelValues(string(req.Class)).Inc()
	appErr := classify(err)
	c.logger.Warn("Request failed",
		zap.String("class", string(req.Class)),
		zap.Uint64("request_id", req.ID),
		zap.String("code", appErr.Code),
		zap.Error(err),
	)
	if c.advisor != nil {
		c.advisor.Advise(req.Class, appErr)
	}
	return OutcomeFailed
}

// Advise raises an advisory for a failure that is not tied to a generation,
// such as one of several independent hazard reports.
func (c *RequestCoordinator) Advise(class domain.RequestClass, err error) {
	metrics.RequestsFailed.WithLabelValues(string(class)).Inc()
	appErr := classify(err)
	c.logger.Warn("Request failed", zap.String("class", string(class)), zap.String("code", appErr.Code), zap.Error(err))
	if c.advisor != nil {
		c.advisor.Advise(class, appErr)
	}
}

// Invalidate makes any in-flight request of class stale and aborts it.
func (c *RequestCoordinator) Invalidate(class domain.RequestClass) {
	c.mu.Lock()
	st := c.state(class)
	st.current++
	prev := st.cancel
	st.cancel = nil
	st.busy = false
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
}

func (c *RequestCoordinator) Busy(class domain.RequestClass) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state(class).busy
}

// BusyClasses reports the busy flag of every request class.
func (c *RequestCoordinator) BusyClasses() map[domain.RequestClass]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.RequestClass]bool, len(domain.RequestClasses))
	for _, class := range domain.RequestClasses {
		out[class] = false
	}
	for class, st := range c.classes {
		out[class] = st.busy
	}
	return out
}

func (c *RequestCoordinator) Current(class domain.RequestClass) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state(class).current
}

// Generations snapshots the current id of every class.
func (c *RequestCoordinator) Generations() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.classes))
	for class, st := range c.classes {
		out[string(class)] = st.current
	}
	return out
}

// classify maps any failure onto the advisory catalogue. Deadlines and
// unknown errors are treated as transient.
func classify(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Wrap(apperrors.ErrUnavailable, err)
}
