package aggregator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/horockey/go-toolbox/options"
	"github.com/horockey/svcbrowser/internal/aggregator"
	"github.com/horockey/svcbrowser/internal/model"
	"github.com/horockey/svcbrowser/internal/transport/memory_transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const domain = "local"

func newMemTransport(t *testing.T, opts ...options.Option[memory_transport.Transport]) *memory_transport.Transport {
	t.Helper()

	tr, err := memory_transport.New(opts...)
	require.NoError(t, err)
	return tr
}

func setup(t *testing.T, opts ...options.Option[memory_transport.Transport]) (*aggregator.Aggregator, *memory_transport.Transport) {
	tr := newMemTransport(t, opts...)
	agg := aggregator.New(tr, model.DefaultProtocols(), zerolog.New(io.Discard))
	require.NoError(t, agg.Start(context.Background(), domain))
	t.Cleanup(agg.Stop)
	return agg, tr
}

func regType(name string, proto string) model.DiscoveredRecord {
	return model.DiscoveredRecord{
		ServiceName:      name,
		RegistrationType: proto + "." + domain,
	}
}

func inst(name string, regType string, removal bool) model.DiscoveredRecord {
	return model.DiscoveredRecord{
		ServiceName:      name,
		RegistrationType: regType,
		Domain:           domain,
		IsRemoval:        removal,
		Attributes:       map[string]string{"txtvers": "1"},
	}
}

type snapshots struct {
	mu   sync.Mutex
	list [][]model.AggregateEntry
}

func (s *snapshots) add(vis []model.AggregateEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, vis)
}

func (s *snapshots) last() []model.AggregateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.list) == 0 {
		return nil
	}
	return s.list[len(s.list)-1]
}

func (s *snapshots) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

func Test_ScenarioA_AppearAndDisappear(t *testing.T) {
	tr := newMemTransport(t)
	agg := aggregator.New(tr, model.DefaultProtocols(), zerolog.New(io.Discard))
	require.NoError(t, agg.Start(context.Background(), domain))
	defer agg.Stop()

	snaps := &snapshots{}
	agg.Subscribe(snaps.add)

	tr.Emit("", domain, model.DiscoveredRecord{ServiceName: "svc1", RegistrationType: "_tcp._svc1"})
	assert.Equal(t, 1, tr.BrowseCount("svc1._tcp", "_svc1"))
	assert.Equal(t, []string{"svc1._tcp"}, agg.ActiveSubscriptions())

	tr.Emit("svc1._tcp", "_svc1", model.DiscoveredRecord{ServiceName: "a", RegistrationType: "svc1._tcp", Domain: "_svc1"})
	vis := agg.CurrentVisibleSet()
	require.Len(t, vis, 1)
	assert.Equal(t, "svc1", vis[0].ServiceName)
	assert.Equal(t, 1, vis[0].LiveInstanceCount())

	tr.Emit("svc1._tcp", "_svc1", model.DiscoveredRecord{ServiceName: "a", RegistrationType: "svc1._tcp", Domain: "_svc1", IsRemoval: true})
	assert.Empty(t, agg.CurrentVisibleSet())

	require.Equal(t, 2, snaps.len())
	assert.Empty(t, snaps.last())
}

func Test_ScenarioB_SingleNestedBrowse(t *testing.T) {
	agg, tr := setup(t)

	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("", domain, regType("_http", "_tcp"))

	assert.Equal(t, 1, tr.BrowseCount("_http._tcp", domain))
	assert.Equal(t, []string{"_http._tcp"}, agg.ActiveSubscriptions())
}

func Test_ScenarioC_UnrecognizedProtocol(t *testing.T) {
	agg, tr := setup(t)

	tr.Emit("", domain, regType("_x", "_ftp"))

	assert.Zero(t, tr.BrowseCount("_x._ftp", domain))
	assert.Empty(t, agg.ActiveSubscriptions())

	// no entry exists, so its instances are orphans
	tr.Emit("_x._ftp", domain, inst("a", "_x._ftp", false))
	assert.Empty(t, agg.CurrentVisibleSet())
	assert.Nil(t, agg.Instances("_x._ftp"))
}

func Test_Dedup_ManyTypesRepeated(t *testing.T) {
	agg, tr := setup(t)

	for i := range 20 {
		tr.Emit("", domain, regType(fmt.Sprintf("_s%d", i%4), "_tcp"))
		tr.Emit("", domain, regType(fmt.Sprintf("_s%d", i%4), "_udp"))
	}

	assert.Len(t, agg.ActiveSubscriptions(), 8)
	for i := range 4 {
		assert.Equal(t, 1, tr.BrowseCount(fmt.Sprintf("_s%d._tcp", i), domain))
		assert.Equal(t, 1, tr.BrowseCount(fmt.Sprintf("_s%d._udp", i), domain))
	}
}

func Test_BalancedEvents_AnyOrderEndAtZero(t *testing.T) {
	orders := [][]bool{
		{false, false, true, true},
		{true, true, false, false},
		{false, true, true, false},
		{true, false, false, true},
	}

	for i, order := range orders {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			agg, tr := setup(t)
			tr.Emit("", domain, regType("_http", "_tcp"))

			for _, removal := range order {
				tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", removal))
			}

			assert.Empty(t, agg.CurrentVisibleSet())
			assert.Empty(t, agg.ConsistencyCheck())
			assert.Empty(t, agg.Instances("_http._tcp"))
		})
	}
}

func Test_DuplicateAppearances_CountedOnce(t *testing.T) {
	agg, tr := setup(t)
	tr.Emit("", domain, regType("_http", "_tcp"))

	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))
	tr.Emit("_http._tcp", domain, inst("blog", "_http._tcp", false))

	vis := agg.CurrentVisibleSet()
	require.Len(t, vis, 1)
	assert.Equal(t, 2, vis[0].LiveInstanceCount())
	assert.Equal(t, "2", vis[0].Attributes[model.AttrServiceCount])

	got := agg.Instances("_http._tcp.")
	require.Len(t, got, 2)
	assert.Equal(t, "blog", got[0].ServiceName)
	assert.Equal(t, "web", got[1].ServiceName)
}

func Test_Instances_AcrossDomains(t *testing.T) {
	agg, tr := setup(t)
	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("", domain, model.DiscoveredRecord{ServiceName: "_http", RegistrationType: "_tcp.example.com"})

	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))
	tr.Emit("_http._tcp", domain, model.DiscoveredRecord{
		ServiceName:      "web",
		RegistrationType: "_http._tcp",
		Domain:           "example.com",
	})

	require.Len(t, agg.CurrentVisibleSet(), 2)

	got := agg.Instances("_http._tcp")
	require.Len(t, got, 2)
	assert.Equal(t, "example.com", got[0].Domain)
	assert.Equal(t, domain, got[1].Domain)
}

func Test_VisibilityThreshold(t *testing.T) {
	agg, tr := setup(t)
	snaps := &snapshots{}
	agg.Subscribe(snaps.add)

	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("", domain, regType("_ipp", "_tcp"))
	assert.Empty(t, agg.CurrentVisibleSet())
	assert.Zero(t, snaps.len())

	tr.Emit("_ipp._tcp", domain, inst("printer", "_ipp._tcp", false))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))

	vis := agg.CurrentVisibleSet()
	require.Len(t, vis, 2)
	assert.Equal(t, "_http", vis[0].ServiceName, "discovery order")
	assert.Equal(t, "_ipp", vis[1].ServiceName)

	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", true))
	vis = agg.CurrentVisibleSet()
	require.Len(t, vis, 1)
	assert.Equal(t, "_ipp", vis[0].ServiceName)

	assert.Equal(t, 3, snaps.len())
	assert.Equal(t, vis, snaps.last())
}

func Test_OrphanInstance_DoesNotTouchOthers(t *testing.T) {
	agg, tr := setup(t)
	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))
	before := agg.CurrentVisibleSet()

	assert.NotPanics(t, func() {
		tr.Emit("_http._tcp", domain, inst("x", "_nope._tcp", false))
		tr.Emit("_http._tcp", domain, model.DiscoveredRecord{ServiceName: "y"})
	})

	assert.Equal(t, before, agg.CurrentVisibleSet())
	assert.Nil(t, agg.Instances("_nope._tcp"))
}

func Test_RemovalWithoutAppearance_IsFlagged(t *testing.T) {
	agg, tr := setup(t)
	tr.Emit("", domain, regType("_http", "_tcp"))

	tr.Emit("_http._tcp", domain, inst("ghost", "_http._tcp", true))

	assert.Empty(t, agg.CurrentVisibleSet())
	violations := agg.ConsistencyCheck()
	require.Len(t, violations, 2)
	assert.Equal(t, -1, violations[0].Count)
	assert.Equal(t, model.IdentityKey("", "_tcp.local", "_http"), violations[0].Key)
	assert.Equal(t, model.IdentityKey(domain, "_http._tcp", "ghost"), violations[1].Key)

	tr.Emit("_http._tcp", domain, inst("ghost", "_http._tcp", false))
	assert.Empty(t, agg.ConsistencyCheck())
}

func Test_TypeRemoval_IsIgnored(t *testing.T) {
	agg, tr := setup(t)
	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))

	rm := regType("_http", "_tcp")
	rm.IsRemoval = true
	tr.Emit("", domain, rm)

	require.Len(t, agg.CurrentVisibleSet(), 1)
	assert.Equal(t, []string{"_http._tcp"}, agg.ActiveSubscriptions())
}

func Test_TypeResighting_KeepsCount(t *testing.T) {
	agg, tr := setup(t)
	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))

	again := regType("_http", "_tcp")
	again.Attributes = map[string]string{"note": "again"}
	tr.Emit("", domain, again)

	vis := agg.CurrentVisibleSet()
	require.Len(t, vis, 1)
	assert.Equal(t, 1, vis[0].LiveInstanceCount())
	assert.Equal(t, "again", vis[0].Attributes["note"])
}

func Test_NestedBrowseFailure_IsReportedAndRetried(t *testing.T) {
	agg, tr := setup(t)

	var errs []error
	agg.SubscribeErrors(func(err error) { errs = append(errs, err) })

	boom := errors.New("transport unavailable")
	tr.FailNextBrowse(boom)
	tr.Emit("", domain, regType("_http", "_tcp"))

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	te := model.TransportError{}
	require.ErrorAs(t, errs[0], &te)
	assert.Equal(t, "_http._tcp", te.RegType)
	assert.Empty(t, agg.ActiveSubscriptions())

	tr.Emit("", domain, regType("_http", "_tcp"))
	assert.Equal(t, []string{"_http._tcp"}, agg.ActiveSubscriptions())
}

func Test_StreamFailure_KeepsSessionActive(t *testing.T) {
	agg, tr := setup(t)
	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))

	var errs []error
	unsubscribe := agg.SubscribeErrors(func(err error) { errs = append(errs, err) })

	tr.Fail("_http._tcp", domain, errors.New("network down"))
	require.Len(t, errs, 1)
	assert.Equal(t, "active", agg.State())
	assert.Len(t, agg.CurrentVisibleSet(), 1)

	unsubscribe()
	tr.Fail("", domain, errors.New("network down"))
	assert.Len(t, errs, 1)
}

func Test_Stop_TearsDown(t *testing.T) {
	tr := newMemTransport(t, memory_transport.WithLeakyCancel())
	agg := aggregator.New(tr, model.DefaultProtocols(), zerolog.New(io.Discard))
	require.NoError(t, agg.Start(context.Background(), domain))

	snaps := &snapshots{}
	agg.Subscribe(snaps.add)

	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("", domain, regType("_ipp", "_tcp"))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))
	require.Equal(t, 3, tr.Active())

	agg.Stop()

	assert.Zero(t, tr.Active())
	assert.Empty(t, agg.CurrentVisibleSet())
	assert.Empty(t, agg.ActiveSubscriptions())
	assert.Equal(t, "stopped", agg.State())
	require.Equal(t, 2, snaps.len())
	assert.Empty(t, snaps.last())

	// late callbacks from a transport that keeps delivering after cancel
	tr.Emit("", domain, regType("_ssh", "_tcp"))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))
	tr.Fail("_http._tcp", domain, errors.New("late"))

	assert.Empty(t, agg.CurrentVisibleSet())
	assert.Empty(t, agg.ActiveSubscriptions())
	assert.Zero(t, tr.BrowseCount("_ssh._tcp", domain))
	assert.Equal(t, 2, snaps.len())
}

func Test_Stop_Idempotent(t *testing.T) {
	tr := newMemTransport(t)
	agg := aggregator.New(tr, model.DefaultProtocols(), zerolog.New(io.Discard))

	assert.NotPanics(t, agg.Stop)
	assert.Equal(t, "idle", agg.State())

	require.NoError(t, agg.Start(context.Background(), domain))
	assert.ErrorIs(t, agg.Start(context.Background(), domain), model.ErrAlreadyStarted)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Stop()
		}()
	}
	wg.Wait()

	assert.NotPanics(t, agg.Stop)
	assert.ErrorIs(t, agg.Start(context.Background(), domain), model.ErrSessionStopped)
	assert.Zero(t, tr.Active())
}

func Test_Start_TransportFailure(t *testing.T) {
	tr := newMemTransport(t)
	agg := aggregator.New(tr, model.DefaultProtocols(), zerolog.New(io.Discard))

	boom := errors.New("permission denied")
	tr.FailNextBrowse(boom)

	err := agg.Start(context.Background(), domain)
	assert.ErrorIs(t, err, boom)
	assert.ErrorAs(t, err, &model.TransportError{})
	assert.Equal(t, "idle", agg.State())

	require.NoError(t, agg.Start(context.Background(), domain))
	agg.Stop()
}

func Test_Unsubscribe(t *testing.T) {
	agg, tr := setup(t)
	snaps := &snapshots{}
	unsubscribe := agg.Subscribe(snaps.add)

	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))
	require.Equal(t, 1, snaps.len())

	unsubscribe()
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", true))
	assert.Equal(t, 1, snaps.len())
}

func Test_Snapshots_AreCopies(t *testing.T) {
	agg, tr := setup(t)
	tr.Emit("", domain, regType("_http", "_tcp"))
	tr.Emit("_http._tcp", domain, inst("web", "_http._tcp", false))

	vis := agg.CurrentVisibleSet()
	vis[0].SetLiveInstanceCount(100)
	vis[0].ServiceName = "mutated"

	again := agg.CurrentVisibleSet()
	assert.Equal(t, 1, again[0].LiveInstanceCount())
	assert.Equal(t, "_http", again[0].ServiceName)
}

func Test_ConcurrentStreams(t *testing.T) {
	agg, tr := setup(t)

	types := []string{"_http", "_ipp", "_ssh", "_smb"}
	for _, typ := range types {
		tr.Emit("", domain, regType(typ, "_tcp"))
	}

	var wg sync.WaitGroup
	for _, typ := range types {
		for w := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rt := typ + "._tcp"
				for i := range 50 {
					name := fmt.Sprintf("inst-%d-%d", w, i)
					tr.Emit(rt, domain, inst(name, rt, false))
				}
				for i := range 50 {
					name := fmt.Sprintf("inst-%d-%d", w, i)
					tr.Emit(rt, domain, inst(name, rt, true))
				}
			}()
		}
	}
	wg.Wait()

	assert.Empty(t, agg.CurrentVisibleSet())
	assert.Empty(t, agg.ConsistencyCheck())
	assert.Len(t, agg.ActiveSubscriptions(), len(types))
}

func Test_DeterministicOrder(t *testing.T) {
	run := func() []string {
		tr := newMemTransport(t)
		agg := aggregator.New(tr, model.DefaultProtocols(), zerolog.New(io.Discard))
		require.NoError(t, agg.Start(context.Background(), domain))
		defer agg.Stop()

		for _, typ := range []string{"_ssh", "_http", "_ipp", "_afpovertcp"} {
			tr.Emit("", domain, regType(typ, "_tcp"))
			tr.Emit(typ+"._tcp", domain, inst("x", typ+"._tcp", false))
		}

		res := []string{}
		for _, e := range agg.CurrentVisibleSet() {
			res = append(res, e.RegType())
		}
		return res
	}

	first := run()
	assert.Equal(t, []string{"_ssh._tcp", "_http._tcp", "_ipp._tcp", "_afpovertcp._tcp"}, first)
	assert.Equal(t, first, run())
}
