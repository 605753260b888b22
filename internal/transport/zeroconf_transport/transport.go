package zeroconf_transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/horockey/go-toolbox/options"
	"github.com/horockey/svcbrowser/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	_ model.Transport       = &Transport{}
	_ model.MetricsProvider = &Transport{}
)

// BrowseFunc matches zeroconf.Browse and may be replaced in tests.
type BrowseFunc func(
	ctx context.Context,
	service string,
	domain string,
	entries chan<- *zeroconf.ServiceEntry,
	removed chan<- *zeroconf.ServiceEntry,
	opts ...zeroconf.ClientOption,
) error

type Transport struct {
	browse     BrowseFunc
	clientOpts []zeroconf.ClientOption
	logger     zerolog.Logger
	metrics    *metrics
}

type createParams struct {
	browse BrowseFunc
	iface  string
	logger zerolog.Logger
}

// Options is a list of New options, handy to build conditionally.
type Options = []options.Option[createParams]

// Sets custom browse func.
// Default is zeroconf.Browse.
func WithBrowseFunc(fn BrowseFunc) options.Option[createParams] {
	return func(target *createParams) error {
		if fn == nil {
			return errors.New("got nil browse func")
		}
		target.browse = fn
		return nil
	}
}

// Restricts browsing to a single network interface.
// Default is all multicast interfaces.
func WithInterface(name string) options.Option[createParams] {
	return func(target *createParams) error {
		if name == "" {
			return errors.New("got empty interface name")
		}
		target.iface = name
		return nil
	}
}

// Sets custom logger.
// Default is stdout logger.
func WithLogger(l zerolog.Logger) options.Option[createParams] {
	return func(target *createParams) error {
		target.logger = l
		return nil
	}
}

func New(opts ...options.Option[createParams]) (*Transport, error) {
	params := createParams{
		browse: zeroconf.Browse,
		logger: zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().
			Timestamp().
			Str("scope", "zeroconf_transport").
			Logger(),
	}
	if err := options.ApplyOptions(&params, opts...); err != nil {
		return nil, fmt.Errorf("applying opts: %w", err)
	}

	tr := Transport{
		browse:  params.browse,
		logger:  params.logger,
		metrics: newMetrics(),
	}

	if params.iface != "" {
		iface, err := net.InterfaceByName(params.iface)
		if err != nil {
			return nil, fmt.Errorf("looking up interface %s: %w", params.iface, err)
		}
		tr.clientOpts = append(tr.clientOpts, zeroconf.SelectIfaces([]net.Interface{*iface}))
	}

	return &tr, nil
}

func (tr *Transport) Metrics() []prometheus.Collector {
	return tr.metrics.list()
}

// Browse starts a multicast browse. An empty regType enumerates registration types.
// Callbacks are invoked from a single goroutine owned by the subscription.
func (tr *Transport) Browse(
	ctx context.Context,
	regType string,
	domain string,
	onRecord model.RecordFunc,
	onErr model.ErrorFunc,
) (model.Subscription, error) {
	if onRecord == nil {
		return nil, errors.New("got nil record callback")
	}

	service := strings.TrimSuffix(regType, ".")
	meta := service == ""
	if meta {
		service = model.ServicesMetaQuery
	}

	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		domain = model.DefaultDomain
	}

	browseCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	errCh := make(chan error, 1)
	browseDone := make(chan struct{})

	go func() {
		defer close(browseDone)
		err := tr.browse(browseCtx, service, domain, entries, removed, tr.clientOpts...)
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	st := stream{
		tr:       tr,
		meta:     meta,
		regType:  regType,
		service:  service,
		domain:   domain,
		onRecord: onRecord,
		onErr:    onErr,
	}
	go func() {
		defer close(sub.done)
		st.pump(browseCtx, entries, removed, errCh)
		drain(entries, removed, browseDone)
	}()

	tr.metrics.browsesCnt.Inc()
	tr.logger.Debug().Str("service", service).Str("domain", domain).Msg("browse started")

	return sub, nil
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the browse and waits until both the callback goroutine
// and the underlying browse have returned.
func (sub *subscription) Cancel() {
	sub.cancel()
	<-sub.done
}

type stream struct {
	tr       *Transport
	meta     bool
	regType  string
	service  string
	domain   string
	onRecord model.RecordFunc
	onErr    model.ErrorFunc
}

func (st stream) pump(
	ctx context.Context,
	entries <-chan *zeroconf.ServiceEntry,
	removed <-chan *zeroconf.ServiceEntry,
	errCh <-chan error,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			st.deliver(e, false)

		case e, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			st.deliver(e, true)

		case err := <-errCh:
			st.tr.metrics.errCnt.Inc()
			st.tr.logger.
				Error().
				Err(fmt.Errorf("browsing %s in %s: %w", st.service, st.domain, err)).
				Send()
			if st.onErr != nil {
				st.onErr(model.TransportError{RegType: st.regType, Domain: st.domain, Err: err})
			}
		}
	}
}

// drain consumes entries left after cancellation until the browse returns.
// zeroconf sends without watching ctx, so an abandoned channel blocks it forever.
func drain(
	entries <-chan *zeroconf.ServiceEntry,
	removed <-chan *zeroconf.ServiceEntry,
	browseDone <-chan struct{},
) {
	for {
		select {
		case <-browseDone:
			return
		case _, ok := <-entries:
			if !ok {
				entries = nil
			}
		case _, ok := <-removed:
			if !ok {
				removed = nil
			}
		}
	}
}

func (st stream) deliver(e *zeroconf.ServiceEntry, removal bool) {
	if e == nil {
		return
	}

	var (
		rec model.DiscoveredRecord
		ok  bool
	)
	if st.meta {
		rec, ok = regTypeRecord(e.Instance, st.domain)
	} else {
		rec, ok = instanceRecord(e, st.service, st.domain)
	}
	if !ok {
		st.tr.logger.Debug().Str("instance", e.Instance).Msg("skipping malformed entry")
		return
	}
	rec.IsRemoval = removal

	if removal {
		st.tr.metrics.removalsCnt.Inc()
	} else {
		st.tr.metrics.entriesCnt.Inc()
	}

	st.onRecord(rec)
}

// regTypeRecord converts an enumerated PTR target such as "_http._tcp.local"
// to {ServiceName: "_http", RegistrationType: "_tcp.local"}.
func regTypeRecord(instance string, domain string) (model.DiscoveredRecord, bool) {
	name := strings.TrimSuffix(instance, ".")
	name = strings.TrimSuffix(name, "."+domain)

	serviceName, proto := model.SplitRegType(name)
	if serviceName == "" || proto == "" {
		return model.DiscoveredRecord{}, false
	}

	return model.DiscoveredRecord{
		ServiceName:      serviceName,
		RegistrationType: proto + "." + domain,
		Attributes:       map[string]string{},
	}, true
}

func instanceRecord(e *zeroconf.ServiceEntry, service string, domain string) (model.DiscoveredRecord, bool) {
	if e.Instance == "" {
		return model.DiscoveredRecord{}, false
	}

	return model.DiscoveredRecord{
		ServiceName:      e.Instance,
		RegistrationType: lo.CoalesceOrEmpty(strings.TrimSuffix(e.Service, "."), service),
		Domain:           lo.CoalesceOrEmpty(strings.TrimSuffix(e.Domain, "."), domain),
		Attributes:       parseTXT(e.Text),
	}, true
}

func parseTXT(txt []string) map[string]string {
	return lo.SliceToMap(
		lo.Filter(txt, func(el string, _ int) bool { return el != "" }),
		func(el string) (string, string) {
			k, v, _ := strings.Cut(el, "=")
			return k, v
		},
	)
}
