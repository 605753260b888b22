package svcbrowser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/horockey/go-toolbox/options"
	"github.com/horockey/svcbrowser/internal/aggregator"
	"github.com/horockey/svcbrowser/internal/controller/http_controller"
	"github.com/horockey/svcbrowser/internal/model"
	"github.com/horockey/svcbrowser/internal/repository/regtype_descriptions"
	"github.com/horockey/svcbrowser/internal/repository/regtype_descriptions/badger_regtype_descriptions"
	"github.com/horockey/svcbrowser/internal/repository/regtype_descriptions/inmemory_regtype_descriptions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Browser runs one discovery session and serves its visible set over HTTP.
type Browser struct {
	*aggregator.Aggregator
	transport    Transport
	descriptions DescriptionsRepository
	ctrl         *http_controller.HttpController
	registry     *prometheus.Registry
	db           *badger.DB
	domain       string
	logger       zerolog.Logger
}

type createBrowserParams struct {
	logger           zerolog.Logger
	domain           string
	transport        Transport
	iface            string
	httpAddr         string
	descriptions     DescriptionsRepository
	badgerDir        string
	descriptionsFile string
	protocols        []string
}

func defaultCreateBrowserParams() createBrowserParams {
	return createBrowserParams{
		domain:    model.DefaultDomain,
		httpAddr:  "0.0.0.0:7070",
		protocols: model.DefaultProtocols(),
		logger: zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().
			Timestamp().
			Str("scope", "svcbrowser").
			Logger(),
	}
}

func NewBrowser(opts ...options.Option[createBrowserParams]) (*Browser, error) {
	params := defaultCreateBrowserParams()
	if err := options.ApplyOptions(&params, opts...); err != nil {
		return nil, fmt.Errorf("applying opts: %w", err)
	}

	br := Browser{
		transport:    params.transport,
		descriptions: params.descriptions,
		domain:       params.domain,
		registry:     prometheus.NewRegistry(),
		logger:       params.logger,
	}

	if br.transport == nil {
		tr, err := NewZeroconfTransport(
			params.iface,
			params.logger.With().Str("subscope", "zeroconf_transport").Logger(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating default transport: %w", err)
		}
		br.transport = tr
	}

	if err := br.initDescriptions(params); err != nil {
		br.Close()
		return nil, fmt.Errorf("initializing descriptions: %w", err)
	}

	br.Aggregator = aggregator.New(
		br.transport,
		params.protocols,
		params.logger.With().Str("subscope", "aggregator").Logger(),
	)

	br.ctrl = http_controller.New(
		params.httpAddr,
		br.Aggregator,
		br.descriptions,
		br.registry,
		br.Logger.With().Str("subscope", "http_controller").Logger(),
	)

	for _, c := range br.Metrics() {
		if err := br.registry.Register(c); err != nil {
			br.Close()
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return &br, nil
}

func (br *Browser) initDescriptions(params createBrowserParams) error {
	if br.descriptions == nil {
		switch params.badgerDir {
		case "":
			br.descriptions = inmemory_regtype_descriptions.New()
		default:
			db, err := badger.Open(badger.DefaultOptions(params.badgerDir))
			if err != nil {
				return fmt.Errorf("opening badger db: %w", err)
			}
			br.db = db
			br.descriptions = badger_regtype_descriptions.New(db)
		}

		all, err := br.descriptions.All()
		if err != nil {
			return fmt.Errorf("reading catalog: %w", err)
		}
		if len(all) == 0 {
			if err := regtype_descriptions.Seed(br.descriptions, regtype_descriptions.Defaults()); err != nil {
				return fmt.Errorf("seeding defaults: %w", err)
			}
		}
	}

	if params.descriptionsFile == "" {
		return nil
	}

	file, err := os.Open(params.descriptionsFile)
	if err != nil {
		return fmt.Errorf("opening descriptions file: %w", err)
	}
	defer file.Close()

	n, err := regtype_descriptions.LoadYAML(file, br.descriptions)
	if err != nil {
		return fmt.Errorf("loading %s: %w", params.descriptionsFile, err)
	}
	params.logger.Info().Int("count", n).Str("file", params.descriptionsFile).Msg("descriptions loaded")

	return nil
}

// Start runs discovery and the HTTP controller until ctx is done,
// then stops the session. A browser can not be restarted.
func (br *Browser) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := br.Aggregator.Start(runCtx, br.domain); err != nil {
		return fmt.Errorf("starting aggregator: %w", err)
	}
	defer br.Aggregator.Stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := br.ctrl.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			br.Logger.
				Error().
				Err(fmt.Errorf("running http controller: %w", err)).
				Send()
			cancel()
		}
	}()

	<-runCtx.Done()
	wg.Wait()
	return fmt.Errorf("running context: %w", runCtx.Err())
}

// Close releases the badger catalog if the browser opened one.
func (br *Browser) Close() {
	if br.db == nil {
		return
	}
	if err := br.db.Close(); err != nil {
		br.logger.
			Error().
			Err(fmt.Errorf("closing badger db: %w", err)).
			Send()
	}
	br.db = nil
}

// Description returns human-readable name of regType, e.g. "_http._tcp".
func (br *Browser) Description(regType string) (string, error) {
	desc, err := br.descriptions.Get(regType)
	if err != nil {
		return "", fmt.Errorf("getting description: %w", err)
	}
	return desc, nil
}

// Handler exposes the HTTP surface for embedding into another server.
func (br *Browser) Handler() http.Handler {
	return br.ctrl
}

func (br *Browser) Metrics() []prometheus.Collector {
	res := slices.Concat(
		br.Aggregator.Metrics(),
		br.ctrl.Metrics(),
		br.descriptions.Metrics(),
	)
	if mp, ok := br.transport.(model.MetricsProvider); ok {
		res = append(res, mp.Metrics()...)
	}
	return res
}
