// Package memory_transport is an in-process discovery transport driven by the caller.
// Events are pushed with Emit and Fail and delivered synchronously to every
// live browse opened for the same pattern and domain.
package memory_transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/horockey/go-toolbox/options"
	"github.com/horockey/svcbrowser/internal/model"
)

var _ model.Transport = &Transport{}

type Transport struct {
	mu         sync.Mutex
	subs       []*subscription
	browseCnt  map[string]int
	failNext   error
	leakyClose bool
}

type subscription struct {
	mu              sync.Mutex
	pattern         string
	onRecord        model.RecordFunc
	onErr           model.ErrorFunc
	cancelRequested bool
	cancelled       bool
	leaky           bool
}

// Makes Cancel only request cancellation, without stopping deliveries.
// Emulates transports whose unsubscription races with in-flight callbacks.
func WithLeakyCancel() options.Option[Transport] {
	return func(target *Transport) error {
		target.leakyClose = true
		return nil
	}
}

func New(opts ...options.Option[Transport]) (*Transport, error) {
	tr := Transport{browseCnt: map[string]int{}}
	if err := options.ApplyOptions(&tr, opts...); err != nil {
		return nil, fmt.Errorf("applying opts: %w", err)
	}
	return &tr, nil
}

func (tr *Transport) Browse(
	ctx context.Context,
	regType string,
	domain string,
	onRecord model.RecordFunc,
	onErr model.ErrorFunc,
) (model.Subscription, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if err := tr.failNext; err != nil {
		tr.failNext = nil
		return nil, err
	}

	p := pattern(regType, domain)
	tr.browseCnt[p]++

	sub := &subscription{
		pattern:  p,
		onRecord: onRecord,
		onErr:    onErr,
		leaky:    tr.leakyClose,
	}
	tr.subs = append(tr.subs, sub)

	context.AfterFunc(ctx, sub.Cancel)

	return sub, nil
}

// FailNextBrowse makes the next Browse call return err.
func (tr *Transport) FailNextBrowse(err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.failNext = err
}

// Emit delivers rec to the browses of regType in domain.
// Returns the number of callbacks invoked.
func (tr *Transport) Emit(regType string, domain string, rec model.DiscoveredRecord) int {
	delivered := 0
	for _, sub := range tr.matching(regType, domain) {
		sub.mu.Lock()
		if !sub.cancelled {
			sub.onRecord(rec.Clone())
			delivered++
		}
		sub.mu.Unlock()
	}
	return delivered
}

// Fail reports err to the browses of regType in domain.
func (tr *Transport) Fail(regType string, domain string, err error) int {
	delivered := 0
	for _, sub := range tr.matching(regType, domain) {
		sub.mu.Lock()
		if !sub.cancelled && sub.onErr != nil {
			sub.onErr(model.TransportError{RegType: regType, Domain: domain, Err: err})
			delivered++
		}
		sub.mu.Unlock()
	}
	return delivered
}

// BrowseCount returns how many times Browse was called for regType in domain.
func (tr *Transport) BrowseCount(regType string, domain string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.browseCnt[pattern(regType, domain)]
}

// Active returns the number of browses not yet cancelled, over all patterns.
func (tr *Transport) Active() int {
	tr.mu.Lock()
	subs := append([]*subscription{}, tr.subs...)
	tr.mu.Unlock()

	res := 0
	for _, sub := range subs {
		sub.mu.Lock()
		if !sub.cancelRequested {
			res++
		}
		sub.mu.Unlock()
	}
	return res
}

func (tr *Transport) matching(regType string, domain string) []*subscription {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	p := pattern(regType, domain)
	res := []*subscription{}
	for _, sub := range tr.subs {
		if sub.pattern == p {
			res = append(res, sub)
		}
	}
	return res
}

func (sub *subscription) Cancel() {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	sub.cancelRequested = true
	if !sub.leaky {
		sub.cancelled = true
	}
}

func pattern(regType string, domain string) string {
	return regType + "|" + domain
}
