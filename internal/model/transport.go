package model

import (
	"context"
)

type (
	RecordFunc func(DiscoveredRecord)
	ErrorFunc  func(error)
)

// Transport opens browses on the underlying discovery service.
//
// Browse must not invoke onRecord or onErr before it returns.
// An empty regType browses for registration types instead of instances.
type Transport interface {
	Browse(
		ctx context.Context,
		regType string,
		domain string,
		onRecord RecordFunc,
		onErr ErrorFunc,
	) (Subscription, error)
}

// Subscription is one live browse.
// After Cancel returns no callback of the subscription is running or will run.
type Subscription interface {
	Cancel()
}
