package memory

import (
	"context"
	"strings"
	"sync"

	repositories "github.com/artfolio/exchange/internal/repositories"
)

type counterState struct {
	value    int64
	step     int64
	maxValue *int64
}

// CounterRepository provides in-memory monotonic sequences for order codes.
type CounterRepository struct {
	mu       sync.Mutex
	counters map[string]*counterState
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs an empty in-memory counter store.
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{counters: make(map[string]*counterState)}
}

// Next increments the counter and returns the new value.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.counters[counterID]
	if !exists {
		state = &counterState{}
		r.counters[counterID] = state
	}
	if step <= 0 {
		step = state.step
	}
	if step <= 0 {
		step = 1
	}

	next := state.value + step
	if state.maxValue != nil && next > *state.maxValue {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, "counter "+counterID+" exhausted", nil)
	}
	state.value = next
	return next, nil
}

// Configure sets increment behaviour and bounds for a counter.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.counters[counterID]
	if !exists {
		state = &counterState{}
		r.counters[counterID] = state
	}
	if cfg.Step > 0 {
		state.step = cfg.Step
	}
	if cfg.MaxValue != nil {
		max := *cfg.MaxValue
		state.maxValue = &max
	}
	if cfg.InitialValue != nil && !exists {
		state.value = *cfg.InitialValue
	}
	return nil
}
