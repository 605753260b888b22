package badger_regtype_descriptions

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/horockey/svcbrowser/internal/repository/regtype_descriptions"
	"github.com/prometheus/client_golang/prometheus"
)

var _ regtype_descriptions.Repository = &badgerRegTypeDescriptions{}

const keyPrefix = "regtype_description:"

type badgerRegTypeDescriptions struct {
	db      *badger.DB
	metrics *metrics
}

type record struct {
	Description string
	Modified    time.Time
}

// New wraps an opened badger db. Closing db is up to caller.
func New(db *badger.DB) *badgerRegTypeDescriptions {
	return &badgerRegTypeDescriptions{
		db:      db,
		metrics: newMetrics(db),
	}
}

func (repo *badgerRegTypeDescriptions) Metrics() []prometheus.Collector {
	return repo.metrics.list()
}

func (repo *badgerRegTypeDescriptions) Get(regType string) (res string, resErr error) {
	defer func(ts time.Time) {
		repo.metrics.requestsCnt.Inc()
		repo.metrics.handleTimeHist.Observe(float64(time.Since(ts)))

		switch {
		case resErr == nil:
			repo.metrics.successProcessCnt.Inc()
			repo.metrics.keyHitsCnt.Inc()
		case errors.As(resErr, &regtype_descriptions.DescriptionNotFoundError{}):
			repo.metrics.keyMissesCnt.Inc()
			fallthrough
		default:
			repo.metrics.errProcessCnt.Inc()
		}
	}(time.Now())

	regType = regtype_descriptions.NormalizeRegType(regType)

	rec := record{}
	if err := repo.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + regType))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return regtype_descriptions.DescriptionNotFoundError{RegType: regType}
			}
			return fmt.Errorf("getting item: %w", err)
		}

		if err := item.Value(func(val []byte) error {
			if err := gob.
				NewDecoder(bytes.NewBuffer(val)).
				Decode(&rec); err != nil {
				return fmt.Errorf("decoding gob: %w", err)
			}
			return nil
		}); err != nil {
			return fmt.Errorf("getting value: %w", err)
		}

		return nil
	}); err != nil {
		return "", fmt.Errorf("reading from db: %w", err)
	}

	return rec.Description, nil
}

func (repo *badgerRegTypeDescriptions) Put(regType string, description string) (resErr error) {
	defer func(ts time.Time) {
		repo.metrics.requestsCnt.Inc()
		repo.metrics.handleTimeHist.Observe(float64(time.Since(ts)))

		switch resErr {
		case nil:
			repo.metrics.successProcessCnt.Inc()
		default:
			repo.metrics.errProcessCnt.Inc()
		}
	}(time.Now())

	buf := bytes.NewBuffer(nil)
	if err := gob.
		NewEncoder(buf).
		Encode(record{Description: description, Modified: time.Now()}); err != nil {
		return fmt.Errorf("encoding gob: %w", err)
	}

	key := []byte(keyPrefix + regtype_descriptions.NormalizeRegType(regType))
	if err := repo.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, buf.Bytes()); err != nil {
			return fmt.Errorf("setting item to db: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("performing upd txn: %w", err)
	}

	return nil
}

func (repo *badgerRegTypeDescriptions) All() (res map[string]string, resErr error) {
	defer func(ts time.Time) {
		repo.metrics.requestsCnt.Inc()
		repo.metrics.handleTimeHist.Observe(float64(time.Since(ts)))

		switch resErr {
		case nil:
			repo.metrics.successProcessCnt.Inc()
		default:
			repo.metrics.errProcessCnt.Inc()
		}
	}(time.Now())

	res = map[string]string{}

	err := repo.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			regType := string(bytes.TrimPrefix(item.KeyCopy(nil), []byte(keyPrefix)))

			rec := record{}
			if err := item.Value(func(val []byte) error {
				if err := gob.
					NewDecoder(bytes.NewBuffer(val)).
					Decode(&rec); err != nil {
					return fmt.Errorf("decoding gob: %w", err)
				}
				return nil
			}); err != nil {
				return fmt.Errorf("getting value of %s: %w", regType, err)
			}

			res[regType] = rec.Description
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("performing view txn: %w", err)
	}

	return res, nil
}
