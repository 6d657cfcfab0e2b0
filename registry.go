package omnifs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/grokify/mogo/log/slogutil"
)

// Registry owns the mapping from backend name to (descriptor, lazily
// constructed operator), plus the designated default backend. It is safe
// for concurrent use by multiple callers.
//
// The registry-wide lock protects bookkeeping only (the name map, the
// registration order, the default pointer). Operator construction and
// connectivity probes run outside it, serialized per backend slot, so a
// slow or wedged backend never stalls operations on other backends and
// concurrent first resolves observe exactly one fully built operator.
type Registry struct {
	mu          sync.RWMutex
	slots       map[string]*slot
	order       []string
	defaultName string
	logger      *slog.Logger
}

// slot is one backend's registry entry. The slot mutex serializes operator
// construction and teardown; desc is immutable after registration, while
// health and lastChecked are guarded by the registry lock.
type slot struct {
	mu      sync.Mutex
	desc    Descriptor
	op      Operator
	removed bool

	health      Health
	lastChecked time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry's structured logger.
// If unset, a null logger is used (no logging).
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty backend registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		slots:  make(map[string]*slot),
		logger: slogutil.Null(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterOption configures one Register call.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	setAsDefault bool
	validate     bool
}

// SetAsDefault makes the backend the registry default on successful
// registration, replacing any previous default.
func SetAsDefault() RegisterOption {
	return func(c *registerConfig) {
		c.setAsDefault = true
	}
}

// SkipValidation registers the backend without the connectivity probe.
// The operator is then constructed on first resolve.
func SkipValidation() RegisterOption {
	return func(c *registerConfig) {
		c.validate = false
	}
}

// Register adds a new named backend. Registration is all-or-nothing: when
// validation is enabled (the default), the operator is constructed and a
// root listing probed first, and a probe failure leaves the registry
// untouched. The first registered backend becomes the default.
//
// Returns ErrInvalidName or ErrInvalidURL for a bad descriptor,
// ErrNameConflict if the name exists, and ErrConnection wrapping the cause
// when construction or the probe fails.
func (r *Registry) Register(ctx context.Context, desc Descriptor, opts ...RegisterOption) error {
	cfg := registerConfig{validate: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.RLock()
	_, exists := r.slots[desc.Name]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %q", ErrNameConflict, desc.Name)
	}

	// Construct and probe outside the registry lock.
	var op Operator
	if cfg.validate {
		var err error
		op, err = newOperator(desc.URL, desc.policy())
		if err != nil {
			r.logger.Error("backend registration failed",
				slog.String("backend", desc.Name), slog.Any("error", err))
			return fmt.Errorf("%w: backend %q: %v", ErrConnection, desc.Name, err)
		}
		if _, err := op.List(ctx, "/"); err != nil {
			_ = op.Close()
			r.logger.Error("backend validation probe failed",
				slog.String("backend", desc.Name), slog.Any("error", err))
			return fmt.Errorf("%w: backend %q: %v", ErrConnection, desc.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.slots[desc.Name]; dup {
		// Lost a registration race; discard the probe connection.
		if op != nil {
			_ = op.Close()
		}
		return fmt.Errorf("%w: %q", ErrNameConflict, desc.Name)
	}

	s := &slot{desc: desc, op: op}
	if cfg.validate {
		s.health = HealthHealthy
		s.lastChecked = time.Now()
	}

	r.slots[desc.Name] = s
	r.order = append(r.order, desc.Name)

	if cfg.setAsDefault || r.defaultName == "" {
		r.defaultName = desc.Name
		r.logger.Info("default backend set", slog.String("backend", desc.Name))
	}

	r.logger.Info("backend registered",
		slog.String("backend", desc.Name),
		slog.String("url", desc.URL),
		slog.Bool("readonly", desc.ReadOnly),
		slog.Bool("validated", cfg.validate),
	)
	return nil
}

// Unregister removes a backend and closes its cached operator best-effort.
//
// Removing the current default while other backends remain fails with
// ErrDefaultBackendInUse unless force is true, in which case the default is
// cleared and default-relative operations fail with ErrNoDefaultBackend
// until SetDefault is called.
func (r *Registry) Unregister(name string, force bool) error {
	r.mu.Lock()

	s, ok := r.slots[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if name == r.defaultName && len(r.slots) > 1 && !force {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDefaultBackendInUse, name)
	}

	delete(r.slots, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if name == r.defaultName {
		r.defaultName = ""
	}
	r.mu.Unlock()

	// Tear down the operator outside the registry lock.
	s.mu.Lock()
	s.removed = true
	op := s.op
	s.op = nil
	s.mu.Unlock()

	if op != nil {
		if err := op.Close(); err != nil {
			r.logger.Warn("closing operator failed",
				slog.String("backend", name), slog.Any("error", err))
		}
	}

	r.logger.Info("backend unregistered", slog.String("backend", name))
	return nil
}

// SetDefault atomically changes the default backend pointer.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	old := r.defaultName
	r.defaultName = name
	r.logger.Info("default backend changed",
		slog.String("from", old), slog.String("to", name))
	return nil
}

// DefaultName returns the current default backend name, or "" if none.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Lookup returns the descriptor and status for name, or for the default
// backend when name is empty, without constructing an operator.
func (r *Registry) Lookup(name string) (BackendInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, resolved, err := r.slotForLocked(name)
	if err != nil {
		return BackendInfo{}, err
	}
	return r.infoLocked(resolved, s), nil
}

// Resolve returns the descriptor and live operator for name, or for the
// default backend when name is empty. The first resolve for a backend
// constructs and caches its operator; construction failure surfaces as
// ErrConnection and does not poison the cache, so a later resolve retries.
func (r *Registry) Resolve(ctx context.Context, name string) (Descriptor, Operator, error) {
	r.mu.RLock()
	s, resolved, err := r.slotForLocked(name)
	r.mu.RUnlock()
	if err != nil {
		return Descriptor{}, nil, err
	}

	op, err := r.operatorFor(ctx, resolved, s)
	if err != nil {
		return Descriptor{}, nil, err
	}
	return s.desc, op, nil
}

// slotForLocked resolves a name-or-default to its slot.
// Callers must hold r.mu.
func (r *Registry) slotForLocked(name string) (*slot, string, error) {
	if name == "" {
		if r.defaultName == "" {
			return nil, "", ErrNoDefaultBackend
		}
		name = r.defaultName
	}

	s, ok := r.slots[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q (registered: %v)", ErrNotFound, name, r.order)
	}
	return s, name, nil
}

// operatorFor returns the slot's cached operator, constructing it on first
// use. Construction holds only the slot mutex, never the registry lock.
func (r *Registry) operatorFor(_ context.Context, name string, s *slot) (Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if s.op != nil {
		return s.op, nil
	}

	r.logger.Info("constructing operator",
		slog.String("backend", name), slog.String("url", s.desc.URL))

	op, err := newOperator(s.desc.URL, s.desc.policy())
	if err != nil {
		r.logger.Error("operator construction failed",
			slog.String("backend", name), slog.Any("error", err))
		return nil, fmt.Errorf("%w: backend %q: %v", ErrConnection, name, err)
	}

	s.op = op
	return op, nil
}

// ListAll returns all backends in registration order, including current
// health and default flags. Operator handles are not exposed.
func (r *Registry) ListAll() []BackendInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]BackendInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.infoLocked(name, r.slots[name]))
	}
	return infos
}

// infoLocked builds a BackendInfo snapshot. Callers must hold r.mu.
func (r *Registry) infoLocked(name string, s *slot) BackendInfo {
	return BackendInfo{
		Descriptor:  s.desc,
		IsDefault:   name == r.defaultName,
		Health:      s.health,
		LastChecked: s.lastChecked,
	}
}

// HealthResult is the outcome of one backend's connectivity probe.
type HealthResult struct {
	// Backend is the probed backend's name.
	Backend string `json:"backend"`

	// Health is the probe outcome.
	Health Health `json:"health"`

	// CheckedAt is when the probe completed.
	CheckedAt time.Time `json:"checked_at"`

	// Err is the probe failure, nil when healthy. It wraps ErrConnection.
	Err error `json:"-"`
}

// CheckHealth probes one backend, or all registered backends when name is
// empty, with a lightweight root listing. Each target's health and
// last-checked time are updated. Probes are independent per backend and
// best-effort: one backend's failure neither removes it nor disturbs the
// other probes. Returns ErrNotFound only for an unknown explicit name.
func (r *Registry) CheckHealth(ctx context.Context, name string) (map[string]HealthResult, error) {
	var targets []string
	r.mu.RLock()
	if name != "" {
		if _, ok := r.slots[name]; !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		targets = []string{name}
	} else {
		targets = append(targets, r.order...)
	}
	r.mu.RUnlock()

	results := make(map[string]HealthResult, len(targets))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			res := r.probe(ctx, target)
			resultsMu.Lock()
			results[target] = res
			resultsMu.Unlock()
		}(target)
	}
	wg.Wait()

	return results, nil
}

// probe runs one backend's health check and records the outcome.
func (r *Registry) probe(ctx context.Context, name string) HealthResult {
	res := HealthResult{Backend: name}

	r.mu.RLock()
	s, ok := r.slots[name]
	r.mu.RUnlock()
	if !ok {
		// Unregistered between snapshot and probe.
		res.Health = HealthUnknown
		res.Err = fmt.Errorf("%w: %q", ErrNotFound, name)
		res.CheckedAt = time.Now()
		return res
	}

	op, err := r.operatorFor(ctx, name, s)
	if err == nil {
		_, err = op.List(ctx, "/")
	}

	res.CheckedAt = time.Now()
	if err != nil {
		res.Health = HealthUnhealthy
		if !IsConnection(err) {
			err = fmt.Errorf("%w: backend %q: %v", ErrConnection, name, err)
		}
		res.Err = err
		r.logger.Warn("health check failed",
			slog.String("backend", name), slog.Any("error", err))
	} else {
		res.Health = HealthHealthy
	}

	r.mu.Lock()
	if cur, ok := r.slots[name]; ok && cur == s {
		s.health = res.Health
		s.lastChecked = res.CheckedAt
	}
	r.mu.Unlock()

	return res
}

// Stats summarizes the registry's contents.
type Stats struct {
	// TotalBackends is the number of registered backends.
	TotalBackends int `json:"total_backends"`

	// DefaultBackend is the current default name, "" if none.
	DefaultBackend string `json:"default_backend"`

	// HealthyBackends counts backends whose last probe succeeded.
	HealthyBackends int `json:"healthy_backends"`

	// ReadOnlyBackends counts backends registered read-only.
	ReadOnlyBackends int `json:"readonly_backends"`

	// Schemes is the sorted set of distinct URL schemes in use.
	Schemes []string `json:"backend_schemes"`
}

// Stats returns a snapshot of registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		TotalBackends:  len(r.slots),
		DefaultBackend: r.defaultName,
	}

	seen := make(map[string]bool)
	for _, s := range r.slots {
		if s.health == HealthHealthy {
			st.HealthyBackends++
		}
		if s.desc.ReadOnly {
			st.ReadOnlyBackends++
		}
		if scheme := s.desc.Scheme(); scheme != "" && !seen[scheme] {
			seen[scheme] = true
			st.Schemes = append(st.Schemes, scheme)
		}
	}
	sort.Strings(st.Schemes)
	return st
}

// Close releases every cached operator best-effort and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	slots := r.slots
	r.slots = make(map[string]*slot)
	r.order = nil
	r.defaultName = ""
	r.mu.Unlock()

	for name, s := range slots {
		s.mu.Lock()
		s.removed = true
		op := s.op
		s.op = nil
		s.mu.Unlock()

		if op != nil {
			if err := op.Close(); err != nil {
				r.logger.Warn("closing operator failed",
					slog.String("backend", name), slog.Any("error", err))
			}
		}
	}
	return nil
}
