package aggregator

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horockey/svcbrowser/internal/model"
	"github.com/horockey/svcbrowser/internal/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var _ model.MetricsProvider = &Aggregator{}

type state int

const (
	stateIdle state = iota
	stateActive
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateActive:
		return "active"
	default:
		return "stopped"
	}
}

type (
	SnapshotFunc func([]model.AggregateEntry)
	ErrorFunc    func(error)
)

// Aggregator runs one discovery session: it browses registration types,
// opens a nested browse per type and counts live instances under each type.
//
// Listeners are called while the session lock is held and
// must not call back into the Aggregator.
type Aggregator struct {
	transport model.Transport
	registry  *registry.Registry
	protocols []string
	SessionID string
	Logger    zerolog.Logger
	metrics   *metrics

	mu       sync.Mutex
	state    state
	ctx      context.Context
	cancel   context.CancelFunc
	domain   string
	topSub   model.Subscription
	stopDone chan struct{}

	entries map[string]*entry
	order   []string
	visible []model.AggregateEntry

	listeners    []listener[SnapshotFunc]
	errListeners []listener[ErrorFunc]
	nextID       int
}

type entry struct {
	model.AggregateEntry
	instances map[string]*instance
}

type instance struct {
	balance int
	record  model.DiscoveredRecord
}

type listener[F any] struct {
	id int
	fn F
}

func New(
	transport model.Transport,
	protocols []string,
	logger zerolog.Logger,
) *Aggregator {
	sessionID := uuid.NewString()
	logger = logger.With().Str("session_id", sessionID).Logger()

	return &Aggregator{
		transport: transport,
		registry:  registry.New(logger.With().Str("subscope", "subscription_registry").Logger()),
		protocols: protocols,
		SessionID: sessionID,
		Logger:    logger,
		metrics:   newMetrics(),
		stopDone:  make(chan struct{}),
		entries:   map[string]*entry{},
	}
}

func (agg *Aggregator) Metrics() []prometheus.Collector {
	return slices.Concat(agg.metrics.list(), agg.registry.Metrics())
}

// Start opens the type-level browse in domain. Idle -> Active.
func (agg *Aggregator) Start(ctx context.Context, domain string) error {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	switch agg.state {
	case stateActive:
		return model.ErrAlreadyStarted
	case stateStopped:
		return model.ErrSessionStopped
	}

	agg.ctx, agg.cancel = context.WithCancel(ctx)
	agg.domain = domain
	agg.state = stateActive

	sub, err := agg.transport.Browse(agg.ctx, "", domain, agg.handleRegType, agg.handleErr)
	if err != nil {
		agg.cancel()
		agg.state = stateIdle
		return fmt.Errorf("opening type browse: %w", model.TransportError{Domain: domain, Err: err})
	}
	agg.topSub = sub

	agg.Logger.Info().Str("domain", domain).Msg("discovery session started")
	return nil
}

// Stop cancels every browse of the session and drops all state. Active -> Stopped.
// Blocks until cancellation is confirmed. No-op when idle or already stopped.
func (agg *Aggregator) Stop() {
	agg.mu.Lock()
	switch agg.state {
	case stateIdle:
		agg.mu.Unlock()
		return
	case stateStopped:
		agg.mu.Unlock()
		<-agg.stopDone
		return
	}

	agg.state = stateStopped
	topSub := agg.topSub
	agg.topSub = nil
	agg.mu.Unlock()

	// Handlers in flight see stateStopped once they get the lock,
	// so cancellation is awaited without holding it.
	if topSub != nil {
		topSub.Cancel()
	}
	agg.registry.StopAll()
	agg.cancel()

	agg.mu.Lock()
	defer agg.mu.Unlock()
	defer close(agg.stopDone)

	hadVisible := len(agg.visible) > 0
	agg.entries = map[string]*entry{}
	agg.order = nil
	agg.visible = nil
	agg.metrics.visibleEntriesGauge.Set(0)
	if hadVisible {
		agg.notify([]model.AggregateEntry{})
	}

	agg.Logger.Info().Str("domain", agg.domain).Msg("discovery session stopped")
}

// CurrentVisibleSet returns entries with a positive live instance count
// in order of first discovery.
func (agg *Aggregator) CurrentVisibleSet() []model.AggregateEntry {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	return agg.visibleSet()
}

// Subscribe registers fn for visible set changes. Returned func unsubscribes.
func (agg *Aggregator) Subscribe(fn SnapshotFunc) func() {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	agg.nextID++
	id := agg.nextID
	agg.listeners = append(agg.listeners, listener[SnapshotFunc]{id: id, fn: fn})

	return func() {
		agg.mu.Lock()
		defer agg.mu.Unlock()
		agg.listeners = slices.DeleteFunc(agg.listeners, func(l listener[SnapshotFunc]) bool { return l.id == id })
	}
}

// SubscribeErrors registers fn for transport failures of any browse in the session.
func (agg *Aggregator) SubscribeErrors(fn ErrorFunc) func() {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	agg.nextID++
	id := agg.nextID
	agg.errListeners = append(agg.errListeners, listener[ErrorFunc]{id: id, fn: fn})

	return func() {
		agg.mu.Lock()
		defer agg.mu.Unlock()
		agg.errListeners = slices.DeleteFunc(agg.errListeners, func(l listener[ErrorFunc]) bool { return l.id == id })
	}
}

// Instances returns live instances counted under regType (e.g. "_http._tcp")
// in every domain the type was seen in, sorted by name then domain.
// Nil when the type is unknown.
func (agg *Aggregator) Instances(regType string) []model.DiscoveredRecord {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	regType = strings.TrimSuffix(regType, ".")

	var res []model.DiscoveredRecord
	for _, key := range agg.order {
		e := agg.entries[key]
		if e.RegType() != regType {
			continue
		}

		if res == nil {
			res = []model.DiscoveredRecord{}
		}
		res = append(res, lo.FilterMap(lo.Values(e.instances), func(el *instance, _ int) (model.DiscoveredRecord, bool) {
			return el.record.Clone(), el.balance > 0
		})...)
	}

	slices.SortFunc(res, func(a, b model.DiscoveredRecord) int {
		return cmp.Or(
			strings.Compare(a.ServiceName, b.ServiceName),
			strings.Compare(a.Domain, b.Domain),
		)
	})

	return res
}

// ActiveSubscriptions returns keys of the nested browses currently open.
func (agg *Aggregator) ActiveSubscriptions() []string {
	return agg.registry.Keys()
}

// ConsistencyCheck reports negative counts: on entries and on single instances
// removed more often than they appeared.
func (agg *Aggregator) ConsistencyCheck() []model.InvariantViolationError {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	res := []model.InvariantViolationError{}
	for _, key := range agg.order {
		e := agg.entries[key]
		if cnt := e.LiveInstanceCount(); cnt < 0 {
			res = append(res, model.InvariantViolationError{Key: key, Count: cnt})
		}
		for _, instKey := range slices.Sorted(maps.Keys(e.instances)) {
			if b := e.instances[instKey].balance; b < 0 {
				res = append(res, model.InvariantViolationError{Key: instKey, Count: b})
			}
		}
	}

	return res
}

func (agg *Aggregator) State() string {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	return agg.state.String()
}

// handleRegType processes records of the type-level browse.
func (agg *Aggregator) handleRegType(rec model.DiscoveredRecord) {
	defer func(ts time.Time) {
		agg.metrics.handleTimeHist.Observe(float64(time.Since(ts)))
	}(time.Now())

	agg.mu.Lock()
	defer agg.mu.Unlock()

	if agg.state != stateActive {
		return
	}
	agg.metrics.regTypeRecordsCnt.Inc()

	// Type withdrawals are not modeled, only instance removals affect counts.
	if rec.IsRemoval {
		agg.Logger.Debug().Str("service", rec.ServiceName).Str("reg_type", rec.RegistrationType).Msg("lost reg type")
		return
	}

	proto, serviceDomain := model.SplitRegType(rec.RegistrationType)
	if !model.IsTransportProtocol(proto, agg.protocols) {
		agg.metrics.unrecognizedCnt.Inc()
		agg.Logger.Debug().Err(model.UnrecognizedProtocolError{Protocol: proto}).Str("service", rec.ServiceName).Send()
		return
	}

	agg.Logger.Debug().Str("service", rec.ServiceName).Str("reg_type", rec.RegistrationType).Msg("found reg type")

	nestedKey := model.NestedKey(rec.ServiceName, proto)
	created, err := agg.registry.Ensure(nestedKey, func() (model.Subscription, error) {
		return agg.transport.Browse(agg.ctx, nestedKey, serviceDomain, agg.handleInstance, agg.handleErr)
	})
	switch {
	case err != nil:
		agg.reportErr(model.TransportError{RegType: nestedKey, Domain: serviceDomain, Err: err})
	case created:
		agg.Logger.Info().Str("reg_type", nestedKey).Str("domain", serviceDomain).Msg("instance browse opened")
	}

	key := rec.Key()
	e, found := agg.entries[key]
	if !found {
		e = &entry{
			AggregateEntry: model.NewAggregateEntry(rec),
			instances:      map[string]*instance{},
		}
		e.SetLiveInstanceCount(0)
		agg.entries[key] = e
		agg.order = append(agg.order, key)
		return
	}

	cnt := e.LiveInstanceCount()
	e.AggregateEntry = model.NewAggregateEntry(rec)
	e.SetLiveInstanceCount(cnt)
	agg.emitIfChanged()
}

// handleInstance processes records of nested browses.
func (agg *Aggregator) handleInstance(rec model.DiscoveredRecord) {
	defer func(ts time.Time) {
		agg.metrics.handleTimeHist.Observe(float64(time.Since(ts)))
	}(time.Now())

	agg.mu.Lock()
	defer agg.mu.Unlock()

	if agg.state != stateActive {
		return
	}
	agg.metrics.instanceRecordsCnt.Inc()

	serviceRegType, proto := model.SplitRegType(rec.RegistrationType)
	lookupKey := model.IdentityKey("", proto+"."+rec.Domain, serviceRegType)

	e, found := agg.entries[lookupKey]
	if !found {
		agg.metrics.orphanCnt.Inc()
		agg.Logger.Warn().Err(model.OrphanInstanceError{LookupKey: lookupKey}).Str("service", rec.ServiceName).Send()
		return
	}

	instKey := rec.Key()
	inst, found := e.instances[instKey]
	if !found {
		inst = &instance{}
		e.instances[instKey] = inst
	}

	before := contribution(inst.balance)
	if rec.IsRemoval {
		agg.Logger.Debug().Str("service", rec.ServiceName).Str("reg_type", rec.RegistrationType).Msg("lost service")
		inst.balance--
	} else {
		agg.Logger.Debug().Str("service", rec.ServiceName).Str("reg_type", rec.RegistrationType).Msg("found service")
		inst.balance++
		inst.record = rec.Clone()
	}
	after := contribution(inst.balance)

	if inst.balance == 0 {
		delete(e.instances, instKey)
	}

	cnt := e.LiveInstanceCount() + after - before
	e.SetLiveInstanceCount(cnt)

	if inst.balance < 0 {
		agg.metrics.violationsCnt.Inc()
		agg.Logger.
			Warn().
			Err(model.InvariantViolationError{Key: instKey, Count: inst.balance}).
			Str("entry", lookupKey).
			Int("count", cnt).
			Send()
	}

	agg.emitIfChanged()
}

func (agg *Aggregator) handleErr(err error) {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	if agg.state != stateActive {
		return
	}
	agg.reportErr(err)
}

// reportErr must be called with the lock held.
func (agg *Aggregator) reportErr(err error) {
	agg.metrics.transportErrCnt.Inc()
	agg.Logger.
		Error().
		Err(fmt.Errorf("discovery transport: %w", err)).
		Send()

	for _, l := range agg.errListeners {
		l.fn(err)
	}
}

// An instance counts once while it has more appearances than removals.
// A negative balance is kept as is so that the entry count shows it.
func contribution(balance int) int {
	if balance > 0 {
		return 1
	}
	return balance
}

func (agg *Aggregator) visibleSet() []model.AggregateEntry {
	return lo.FilterMap(agg.order, func(key string, _ int) (model.AggregateEntry, bool) {
		e := agg.entries[key]
		return e.AggregateEntry.Clone(), e.LiveInstanceCount() > 0
	})
}

func (agg *Aggregator) emitIfChanged() {
	vis := agg.visibleSet()
	if slices.EqualFunc(vis, agg.visible, sameEntry) {
		return
	}

	agg.visible = vis
	agg.metrics.visibleEntriesGauge.Set(float64(len(vis)))
	agg.notify(vis)
}

func (agg *Aggregator) notify(vis []model.AggregateEntry) {
	for _, l := range agg.listeners {
		l.fn(lo.Map(vis, func(el model.AggregateEntry, _ int) model.AggregateEntry { return el.Clone() }))
	}
}

func sameEntry(a, b model.AggregateEntry) bool {
	return a.ServiceName == b.ServiceName &&
		a.RegistrationType == b.RegistrationType &&
		a.Domain == b.Domain &&
		maps.Equal(a.Attributes, b.Attributes)
}
