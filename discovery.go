package svcbrowser

import (
	"fmt"

	"github.com/horockey/svcbrowser/internal/model"
	"github.com/horockey/svcbrowser/internal/transport/zeroconf_transport"
	"github.com/rs/zerolog"
)

type (
	Transport    = model.Transport
	Subscription = model.Subscription
	RecordFunc   = model.RecordFunc
)

// NewZeroconfTransport creates multicast DNS transport.
// Empty iface means all multicast capable interfaces.
func NewZeroconfTransport(iface string, logger zerolog.Logger) (Transport, error) {
	opts := zeroconf_transport.Options{zeroconf_transport.WithLogger(logger)}
	if iface != "" {
		opts = append(opts, zeroconf_transport.WithInterface(iface))
	}

	tr, err := zeroconf_transport.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating zeroconf transport: %w", err)
	}

	return tr, nil
}
