package inmemory_regtype_descriptions

import (
	"maps"
	"sync"
	"time"

	"github.com/horockey/svcbrowser/internal/repository/regtype_descriptions"
	"github.com/prometheus/client_golang/prometheus"
)

var _ regtype_descriptions.Repository = &inmemoryRegTypeDescriptions{}

type inmemoryRegTypeDescriptions struct {
	storage map[string]string
	mu      sync.RWMutex
	metrics *metrics
}

// New creates empty repo.
// Use regtype_descriptions.Seed to fill it with defaults.
func New() *inmemoryRegTypeDescriptions {
	repo := inmemoryRegTypeDescriptions{
		storage: map[string]string{},
	}

	repo.metrics = newMetrics(&repo)

	return &repo
}

func (repo *inmemoryRegTypeDescriptions) Get(regType string) (res string, resErr error) {
	repo.metrics.requestsCnt.Inc()
	defer repo.observe(time.Now(), &resErr)

	repo.mu.RLock()
	defer repo.mu.RUnlock()

	regType = regtype_descriptions.NormalizeRegType(regType)
	desc, found := repo.storage[regType]
	if !found {
		return "", regtype_descriptions.DescriptionNotFoundError{RegType: regType}
	}

	return desc, nil
}

func (repo *inmemoryRegTypeDescriptions) Put(regType string, description string) (resErr error) {
	repo.metrics.requestsCnt.Inc()
	defer repo.observe(time.Now(), &resErr)

	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.storage[regtype_descriptions.NormalizeRegType(regType)] = description
	return nil
}

func (repo *inmemoryRegTypeDescriptions) All() (res map[string]string, resErr error) {
	repo.metrics.requestsCnt.Inc()
	defer repo.observe(time.Now(), &resErr)

	repo.mu.RLock()
	defer repo.mu.RUnlock()

	return maps.Clone(repo.storage), nil
}

func (repo *inmemoryRegTypeDescriptions) Metrics() []prometheus.Collector {
	return repo.metrics.list()
}

func (repo *inmemoryRegTypeDescriptions) observe(ts time.Time, resErr *error) {
	repo.metrics.handleTimeHist.Observe(float64(time.Since(ts)))
	switch *resErr {
	case nil:
		repo.metrics.successProcessCnt.Inc()
	default:
		repo.metrics.errProcessCnt.Inc()
	}
}
