package repositories

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/artfolio/exchange/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// HealthProbe checks a single downstream dependency (firestore, pubsub, stripe).
type HealthProbe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// BuildInfo carries release metadata reported alongside probe results.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
}

type probeHealthRepository struct {
	probes    []HealthProbe
	build     BuildInfo
	timeout   time.Duration
	now       func() time.Time
	startedAt time.Time
}

var _ HealthRepository = (*probeHealthRepository)(nil)

// NewProbeHealthRepository constructs a HealthRepository that evaluates each
// probe concurrently and aggregates the worst status.
func NewProbeHealthRepository(probes []HealthProbe, build BuildInfo, clock func() time.Time) (HealthRepository, error) {
	if len(probes) == 0 {
		return nil, errors.New("health repository: at least one probe is required")
	}
	if clock == nil {
		clock = time.Now
	}
	for _, probe := range probes {
		if strings.TrimSpace(probe.Name) == "" {
			return nil, errors.New("health repository: probe missing name")
		}
		if probe.Check == nil {
			return nil, errors.New("health repository: probe " + probe.Name + " missing check function")
		}
	}

	repo := &probeHealthRepository{
		probes:    append([]HealthProbe(nil), probes...),
		build:     build,
		timeout:   defaultProbeTimeout,
		now:       clock,
		startedAt: clock(),
	}
	return repo, nil
}

func (r *probeHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]domain.SystemHealthCheck, len(r.probes))
	)

	for _, probe := range r.probes {
		probe := probe
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := r.run(ctx, probe)
			mu.Lock()
			results[probe.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := domain.HealthStatusOK
	for _, result := range results {
		if result.Status == domain.HealthStatusError {
			status = domain.HealthStatusError
			break
		}
		if result.Status == domain.HealthStatusDegraded {
			status = domain.HealthStatusDegraded
		}
	}

	now := r.now()
	return domain.SystemHealthReport{
		Status:      status,
		Checks:      results,
		Version:     r.build.Version,
		CommitSHA:   r.build.CommitSHA,
		Environment: r.build.Environment,
		Uptime:      now.Sub(r.startedAt),
		GeneratedAt: now,
	}, nil
}

func (r *probeHealthRepository) run(ctx context.Context, probe HealthProbe) domain.SystemHealthCheck {
	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := probe.Check(probeCtx)
	end := r.now()

	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		check.Status = domain.HealthStatusError
		check.Detail = "timeout"
		check.Error = err.Error()
	case errors.Is(err, context.Canceled):
		check.Status = domain.HealthStatusError
		check.Detail = "cancelled"
		check.Error = err.Error()
	default:
		check.Status = domain.HealthStatusDegraded
		check.Detail = err.Error()
		check.Error = err.Error()
	}
	return check
}
