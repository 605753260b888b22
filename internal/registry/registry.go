package registry

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/horockey/svcbrowser/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var _ model.MetricsProvider = &Registry{}

// Factory opens the subscription registered under a key.
type Factory func() (model.Subscription, error)

// Registry holds the active nested browses of one session, keyed by a derived string.
// At most one subscription exists per key.
type Registry struct {
	mu      sync.Mutex
	subs    map[string]model.Subscription
	stopped bool
	logger  zerolog.Logger
	metrics *metrics
}

func New(logger zerolog.Logger) *Registry {
	reg := Registry{
		subs:   map[string]model.Subscription{},
		logger: logger,
	}
	reg.metrics = newMetrics(&reg)

	return &reg
}

func (reg *Registry) Metrics() []prometheus.Collector {
	return reg.metrics.list()
}

// Ensure invokes factory and registers its subscription if key is not active yet.
// Reports whether a new subscription was created.
// On factory failure nothing is registered and the error is returned.
func (reg *Registry) Ensure(key string, factory Factory) (bool, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.stopped {
		return false, model.ErrRegistryStopped
	}

	if _, found := reg.subs[key]; found {
		return false, nil
	}

	sub, err := factory()
	if err != nil {
		reg.metrics.failedCnt.Inc()
		return false, fmt.Errorf("starting subscription %s: %w", key, err)
	}

	reg.subs[key] = sub
	reg.metrics.createdCnt.Inc()
	reg.logger.Debug().Str("key", key).Msg("subscription started")

	return true, nil
}

// Remove cancels a single subscription. Reports whether key was active.
func (reg *Registry) Remove(key string) bool {
	reg.mu.Lock()
	sub, found := reg.subs[key]
	delete(reg.subs, key)
	reg.mu.Unlock()

	if !found {
		return false
	}

	sub.Cancel()
	reg.logger.Debug().Str("key", key).Msg("subscription cancelled")
	return true
}

// StopAll cancels every subscription and refuses further Ensure calls.
// Cancellation is awaited outside the lock, so callbacks blocked on
// the caller's own state can drain.
func (reg *Registry) StopAll() {
	reg.mu.Lock()
	subs := reg.subs
	reg.subs = map[string]model.Subscription{}
	reg.stopped = true
	reg.mu.Unlock()

	for key, sub := range subs {
		sub.Cancel()
		reg.logger.Debug().Str("key", key).Msg("subscription cancelled")
	}
}

func (reg *Registry) Has(key string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	_, found := reg.subs[key]
	return found
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.subs)
}

// Keys returns active keys in sorted order.
func (reg *Registry) Keys() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return slices.Sorted(maps.Keys(reg.subs))
}
