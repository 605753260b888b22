package http_controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/horockey/go-toolbox/http_helpers"
	"github.com/horockey/svcbrowser/internal/controller/http_controller/dto"
	"github.com/horockey/svcbrowser/internal/model"
	"github.com/horockey/svcbrowser/internal/repository/regtype_descriptions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	_ model.MetricsProvider = &HttpController{}
	_ http.Handler          = &HttpController{}
)

// Source is the read side of a discovery session.
type Source interface {
	CurrentVisibleSet() []model.AggregateEntry
	Instances(regType string) []model.DiscoveredRecord
	ConsistencyCheck() []model.InvariantViolationError
}

type HttpController struct {
	serv    *http.Server
	router  *mux.Router
	src     Source
	descs   regtype_descriptions.Repository
	logger  zerolog.Logger
	metrics *metrics
}

// New creates controller serving src.
// descs may be nil, then entries go out without description.
// gatherer backs /metrics and may be nil to disable it.
func New(
	addr string,
	src Source,
	descs regtype_descriptions.Repository,
	gatherer prometheus.Gatherer,
	logger zerolog.Logger,
) *HttpController {
	ctrl := HttpController{
		serv: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
		},
		router:  mux.NewRouter(),
		src:     src,
		descs:   descs,
		logger:  logger,
		metrics: newMetrics(),
	}

	ctrl.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ctrl.router.HandleFunc("/regtypes", ctrl.getRegTypesHandler).Methods(http.MethodGet)
	ctrl.router.HandleFunc("/regtypes/{name}/{protocol}/instances", ctrl.getInstancesHandler).Methods(http.MethodGet)
	ctrl.router.HandleFunc("/diagnostics", ctrl.getDiagnosticsHandler).Methods(http.MethodGet)
	if gatherer != nil {
		ctrl.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	ctrl.router.Use(ctrl.metricsMW)

	ctrl.serv.Handler = ctrl.router

	return &ctrl
}

func (ctrl *HttpController) Metrics() []prometheus.Collector {
	return ctrl.metrics.list()
}

func (ctrl *HttpController) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctrl.router.ServeHTTP(w, req)
}

// Start serves until ctx is done or the listener fails.
func (ctrl *HttpController) Start(ctx context.Context) (resErr error) {
	var wg sync.WaitGroup
	defer wg.Wait()

	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctrl.logger.Info().Str("addr", ctrl.serv.Addr).Msg("http controller started")

	select {
	case <-ctx.Done():
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
			resErr = errors.Join(resErr, fmt.Errorf("running context: %w", ctx.Err()))
		}

		sdCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := ctrl.serv.Shutdown(sdCtx); err != nil {
			resErr = errors.Join(resErr, fmt.Errorf("shutting down server: %w", err))
		}
		return resErr

	case err := <-errCh:
		return fmt.Errorf("running server: %w", err)
	}
}

func (ctrl *HttpController) metricsMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sw := statusWriter{ResponseWriter: w, status: http.StatusOK}

		route := "unknown"
		if cur := mux.CurrentRoute(req); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		defer func(ts time.Time) {
			ctrl.metrics.requestsCnt.WithLabelValues(route).Inc()
			ctrl.metrics.handleTimeHist.Observe(float64(time.Since(ts)))

			switch {
			case sw.status < http.StatusBadRequest:
				ctrl.metrics.successProcessCnt.WithLabelValues(route).Inc()
			default:
				ctrl.metrics.errProcessCnt.WithLabelValues(route).Inc()
			}
		}(time.Now())

		next.ServeHTTP(&sw, req)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func (ctrl *HttpController) getRegTypesHandler(w http.ResponseWriter, _ *http.Request) {
	res := lo.Map(ctrl.src.CurrentVisibleSet(), func(el model.AggregateEntry, _ int) dto.RegType {
		return dto.NewRegType(el, ctrl.describe(el.RegType()))
	})

	_ = http_helpers.RespondOK(w, res)
}

func (ctrl *HttpController) getInstancesHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	name, protocol := vars["name"], vars["protocol"]
	if name == "" || protocol == "" {
		err := errors.New("missing name or protocol")
		ctrl.logger.Error().Err(err).Send()
		_ = http_helpers.RespondWithErr(w, http.StatusBadRequest, err)
		return
	}

	regType := model.NestedKey(name, protocol)
	instances := ctrl.src.Instances(regType)
	if instances == nil {
		_ = http_helpers.RespondWithErr(w, http.StatusNotFound, fmt.Errorf("unknown registration type %s", regType))
		return
	}

	_ = http_helpers.RespondOK(w, lo.Map(instances, func(el model.DiscoveredRecord, _ int) dto.Instance {
		return dto.NewInstance(el)
	}))
}

func (ctrl *HttpController) getDiagnosticsHandler(w http.ResponseWriter, _ *http.Request) {
	violations := ctrl.src.ConsistencyCheck()

	_ = http_helpers.RespondOK(w, dto.Diagnostics{
		Consistent: len(violations) == 0,
		Violations: lo.Map(violations, func(el model.InvariantViolationError, _ int) dto.Violation {
			return dto.Violation{Key: el.Key, Count: el.Count}
		}),
	})
}

func (ctrl *HttpController) describe(regType string) string {
	if ctrl.descs == nil {
		return ""
	}

	desc, err := ctrl.descs.Get(regType)
	if err != nil {
		if !errors.As(err, &regtype_descriptions.DescriptionNotFoundError{}) {
			ctrl.logger.
				Error().
				Err(fmt.Errorf("getting description of %s: %w", regType, err)).
				Send()
		}
		return ""
	}

	return desc
}
