package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/limits/expiry"
	"mercator-hq/admission/pkg/limits/quota"
	"mercator-hq/admission/pkg/limits/ratelimit"
)

// Pool is one named quota pool with its optional permit gate.
type Pool struct {
	name    string
	manager *quota.Manager[string]
	gate    ratelimit.RateLimiter
	gateID  string
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Manager returns the pool's quota manager.
func (p *Pool) Manager() *quota.Manager[string] { return p.manager }

// Gate returns the pool's permit gate, or nil.
func (p *Pool) Gate() ratelimit.RateLimiter { return p.gate }

// Registry holds the named quota pools built from configuration.
//
// The set of pools is fixed at construction, so lookups take no locks. Each
// pool's quota.Manager provides its own concurrency guarantees.
//
// # Example
//
//	registry, err := limits.NewRegistry(cfg.Limits, limits.Options{})
//	if err != nil {
//	    return err
//	}
//	defer registry.Close()
//
//	res, err := registry.Take(ctx, "api", requestID)
//	if err != nil {
//	    return err
//	}
//	if !res.Granted {
//	    // No slot available
//	}
//	// ... do the work, then
//	registry.Confirm("api", requestID)
type Registry struct {
	pools  map[string]*Pool
	names  []string
	logger *slog.Logger
}

// NewRegistry builds one pool per entry in cfg.Pools. cfg is expected to
// have defaults applied and to have passed validation; NewRegistry still
// rejects settings the quota or ratelimit packages cannot use.
func NewRegistry(cfg config.LimitsConfig, opts Options) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{
		pools:  make(map[string]*Pool, len(cfg.Pools)),
		logger: opts.Logger.With("component", "limits.registry"),
	}

	for name := range cfg.Pools {
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	for _, name := range r.names {
		pool, err := newPool(name, cfg.Pools[name], opts)
		if err != nil {
			r.Stop()
			return nil, fmt.Errorf("pool %q: %w", name, err)
		}
		r.pools[name] = pool
	}

	r.logger.Info("quota pools ready", "pools", r.names)
	return r, nil
}

func newPool(name string, pc config.PoolConfig, opts Options) (*Pool, error) {
	strategy, err := expiry.ParseStrategy(pc.Strategy)
	if err != nil {
		return nil, err
	}

	var pm *PoolMetrics
	if opts.Metrics != nil {
		pm = opts.Metrics.ForPool(name)
	}

	gate, gateID, err := newGate(pc.RateLimit, pm)
	if err != nil {
		return nil, err
	}

	observers := append([]quota.Observer(nil), opts.Observers...)
	if pm != nil {
		observers = append(observers, pm)
	}

	var onExpire func(context.Context, string)
	if opts.OnExpire != nil {
		onExpire = func(ctx context.Context, id string) {
			opts.OnExpire(ctx, name, id)
		}
	}

	manager, err := quota.New(quota.Config[string]{
		Name:        name,
		Capacity:    pc.Capacity,
		TTL:         pc.TTL,
		Workers:     pc.Workers,
		Strategy:    strategy,
		OnExpire:    onExpire,
		RateLimiter: gate,
		Observers:   observers,
		Logger:      opts.Logger,
	})
	if err != nil {
		stopGate(gate)
		return nil, err
	}

	if pm != nil {
		pm.setRemaining(manager.WatchExact())
	}

	return &Pool{
		name:    name,
		manager: manager,
		gate:    gate,
		gateID:  gateID,
	}, nil
}

// newGate builds the permit gate described by rc, or returns nil when rate
// limiting is disabled.
func newGate(rc config.RateLimitConfig, pm *PoolMetrics) (ratelimit.RateLimiter, string, error) {
	if !rc.Enabled {
		return nil, "", nil
	}

	var observer ratelimit.Observer
	if pm != nil {
		observer = pm
	}

	// Negative timeouts mean do not wait.
	timeout := max(rc.Timeout, 0)

	switch rc.Algorithm {
	case AlgorithmSmooth:
		if rc.Capacity <= 0 || rc.Interval <= 0 {
			return nil, "", fmt.Errorf("%w: smooth gate needs positive capacity and interval", ratelimit.ErrInvalidConfig)
		}
		smooth := ratelimit.NewSmoothPerInterval(rc.Capacity, rc.Interval, rc.Burst, timeout)
		if observer != nil {
			smooth.WithObserver(observer)
		}
		return smooth, AlgorithmSmooth, nil

	case AlgorithmInterval, "":
		strategy, err := expiry.ParseStrategy(rc.Strategy)
		if err != nil {
			return nil, "", err
		}
		generic, err := ratelimit.New(ratelimit.Config{
			Capacity:    rc.Capacity,
			Interval:    rc.Interval,
			Timeout:     timeout,
			HighTraffic: rc.HighTraffic,
			Strategy:    strategy,
			Observer:    observer,
		})
		if err != nil {
			return nil, "", err
		}
		return generic, AlgorithmInterval, nil

	default:
		return nil, "", fmt.Errorf("%w: unknown algorithm %q", ratelimit.ErrInvalidConfig, rc.Algorithm)
	}
}

func stopGate(g ratelimit.RateLimiter) {
	if s, ok := g.(interface{ Stop() }); ok {
		s.Stop()
	}
}

// Pool returns the named pool.
func (r *Registry) Pool(name string) (*Pool, error) {
	p, ok := r.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}
	return p, nil
}

// Pools returns the pool names in sorted order.
func (r *Registry) Pools() []string {
	return append([]string(nil), r.names...)
}

// Take claims a slot for id in the named pool. A denied take is not an
// error: it returns a result with Granted false.
func (r *Registry) Take(ctx context.Context, pool, id string) (TakeResult, error) {
	p, err := r.Pool(pool)
	if err != nil {
		return TakeResult{Pool: pool}, err
	}

	serial, ok := p.manager.Take(ctx, id)
	return TakeResult{Pool: pool, Serial: serial, Granted: ok}, nil
}

// Cancel returns id's pending slot to the named pool.
func (r *Registry) Cancel(pool, id string) (bool, error) {
	p, err := r.Pool(pool)
	if err != nil {
		return false, err
	}
	return p.manager.Cancel(id), nil
}

// Confirm consumes id's pending slot in the named pool.
func (r *Registry) Confirm(pool, id string) (bool, error) {
	p, err := r.Pool(pool)
	if err != nil {
		return false, err
	}
	return p.manager.Confirm(id), nil
}

// Remaining returns the named pool's remaining slot count.
func (r *Registry) Remaining(pool string) (int64, error) {
	p, err := r.Pool(pool)
	if err != nil {
		return 0, err
	}
	return p.manager.WatchExact(), nil
}

// Status returns a snapshot of every pool, sorted by name.
func (r *Registry) Status() []PoolStatus {
	out := make([]PoolStatus, 0, len(r.names))
	for _, name := range r.names {
		p := r.pools[name]
		out = append(out, PoolStatus{
			Name:      name,
			Remaining: p.manager.WatchExact(),
			Pending:   p.manager.Pending(),
			Stopped:   p.manager.Stopped(),
			Gate:      p.gateID,
		})
	}
	return out
}

// Stop gracefully stops every pool and its permit gate. It returns the
// remaining count of each pool once pending slots have been expired.
func (r *Registry) Stop() map[string]int64 {
	remaining := make(map[string]int64, len(r.pools))
	for _, name := range r.names {
		p, ok := r.pools[name]
		if !ok {
			continue
		}
		remaining[name] = p.manager.Stop()
		stopGate(p.gate)
	}
	return remaining
}

// ForceStop stops every pool without waiting for running expirations. The
// returned error joins the quota.ErrInterrupted errors of interrupted pools.
func (r *Registry) ForceStop() (map[string]int64, error) {
	remaining := make(map[string]int64, len(r.pools))
	var errs []error
	for _, name := range r.names {
		p, ok := r.pools[name]
		if !ok {
			continue
		}
		n, err := p.manager.ForceStop()
		remaining[name] = n
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %q: %w", name, err))
		}
		stopGate(p.gate)
	}
	return remaining, errors.Join(errs...)
}

// Close stops every pool. It implements io.Closer.
func (r *Registry) Close() error {
	remaining := r.Stop()
	r.logger.Info("quota pools stopped", "remaining", remaining)
	return nil
}
