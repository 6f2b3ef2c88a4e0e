package worker

import (
	"context"
	"fmt"

	"github.com/armandavtyann/ticket/internal/domain"
)

// Handler executes one delivered job. Returning nil acks the delivery;
// returning an error hands it to the dispatch retry policy.
type Handler func(ctx context.Context, msg *domain.ExecutionMessage) error

// FatalError wraps a handler error that must not be retried. Return this to
// park a delivery directly in the dead state.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return e.Cause.Error() }
func (e *FatalError) Unwrap() error { return e.Cause }

// Registry maps job types to their handlers.
type Registry struct {
	handlers map[domain.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.JobType]Handler)}
}

func (r *Registry) Register(t domain.JobType, h Handler) {
	r.handlers[t] = h
}

func (r *Registry) Lookup(t domain.JobType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type: %q", t)
	}
	return h, nil
}

func (r *Registry) Types() []domain.JobType {
	types := make([]domain.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
