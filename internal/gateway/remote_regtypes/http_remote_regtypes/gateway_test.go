package http_remote_regtypes_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/horockey/svcbrowser/internal/controller/http_controller"
	"github.com/horockey/svcbrowser/internal/controller/http_controller/dto"
	"github.com/horockey/svcbrowser/internal/gateway/remote_regtypes/http_remote_regtypes"
	"github.com/horockey/svcbrowser/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []model.AggregateEntry

func (src staticSource) CurrentVisibleSet() []model.AggregateEntry         { return src }
func (src staticSource) Instances(string) []model.DiscoveredRecord         { return nil }
func (src staticSource) ConsistencyCheck() []model.InvariantViolationError { return nil }

func Test_GetVisibleSet(t *testing.T) {
	e := model.NewAggregateEntry(model.DiscoveredRecord{ServiceName: "_ssh", RegistrationType: "_tcp.local"})
	e.SetLiveInstanceCount(3)

	ctrl := http_controller.New("", staticSource{e}, nil, nil, zerolog.New(io.Discard))
	srv := httptest.NewServer(ctrl)
	defer srv.Close()

	gw := http_remote_regtypes.New(time.Second, zerolog.New(io.Discard))

	res, err := gw.GetVisibleSet(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "_ssh._tcp", res[0].RegType)
	assert.Equal(t, 3, res[0].Count)
	assert.Equal(t, e, dto.RegTypeToModel(res[0]))
}

func Test_GetVisibleSet_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := http_remote_regtypes.New(time.Second, zerolog.New(io.Discard))

	_, err := gw.GetVisibleSet(context.Background(), srv.URL)
	assert.Error(t, err)
}

func Test_GetVisibleSet_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	gw := http_remote_regtypes.New(time.Second, zerolog.New(io.Discard))

	_, err := gw.GetVisibleSet(context.Background(), srv.URL)
	assert.Error(t, err)
}

func Test_Metrics(t *testing.T) {
	assert.Len(t, http_remote_regtypes.New(time.Second, zerolog.New(io.Discard)).Metrics(), 4)
}
