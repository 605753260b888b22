package http_remote_regtypes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	controller_dto "github.com/horockey/svcbrowser/internal/controller/http_controller/dto"
	"github.com/horockey/svcbrowser/internal/gateway/remote_regtypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var _ remote_regtypes.Gateway = &httpRemoteRegTypes{}

type httpRemoteRegTypes struct {
	cl      *resty.Client
	metrics *metrics
	logger  zerolog.Logger
}

func New(timeout time.Duration, logger zerolog.Logger) *httpRemoteRegTypes {
	return &httpRemoteRegTypes{
		metrics: newMetrics(),
		logger:  logger,
		cl: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0),
	}
}

func (gw *httpRemoteRegTypes) Metrics() []prometheus.Collector {
	return gw.metrics.list()
}

func (gw *httpRemoteRegTypes) GetVisibleSet(
	ctx context.Context,
	baseURL string,
) (res []controller_dto.RegType, resErr error) {
	gw.logger.Debug().Str("base_url", baseURL).Msg("Getting visible set from remote")
	defer func(ts time.Time) {
		gw.metrics.requestsCnt.Inc()
		gw.metrics.handleTimeHist.Observe(float64(time.Since(ts)))

		switch resErr {
		case nil:
			gw.metrics.successProcessCnt.Inc()
		default:
			gw.metrics.errProcessCnt.Inc()
		}
	}(time.Now())

	resp, err := gw.cl.R().
		SetContext(ctx).
		Get(strings.TrimSuffix(baseURL, "/") + "/regtypes")
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("got non-ok response (%s): %s", resp.Status(), resp.String())
	}

	res = []controller_dto.RegType{}
	if err := json.Unmarshal(resp.Body(), &res); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	return res, nil
}
