package svcbrowser

import (
	"errors"
	"fmt"
	"net"

	"github.com/horockey/go-toolbox/options"
	"github.com/rs/zerolog"
)

// Options is a list of NewBrowser options, handy to build conditionally.
type Options = []options.Option[createBrowserParams]

// Sets custom logger.
// Default is stdout logger.
func WithLogger(l zerolog.Logger) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		target.logger = l
		return nil
	}
}

// Sets browsing domain.
// Default is local.
func WithDomain(domain string) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		if domain == "" {
			return errors.New("got empty domain")
		}
		target.domain = domain
		return nil
	}
}

// Sets user-defined discovery transport.
// Default is multicast DNS via zeroconf.
func WithTransport(tr Transport) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		if tr == nil {
			return errors.New("got nil transport")
		}
		target.transport = tr
		return nil
	}
}

// Restricts the default transport to one network interface.
// Ignored when WithTransport is applied.
func WithInterface(name string) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		if name == "" {
			return errors.New("got empty interface name")
		}
		target.iface = name
		return nil
	}
}

// Sets address of the HTTP controller.
// Default is 0.0.0.0:7070.
func WithHTTPAddr(addr string) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("parsing http addr: %w", err)
		}
		target.httpAddr = addr
		return nil
	}
}

// Sets user-defined description catalog.
// Default is in-memory catalog seeded with well-known types.
func WithDescriptions(repo DescriptionsRepository) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		if repo == nil {
			return errors.New("got nil descriptions repo")
		}
		target.descriptions = repo
		return nil
	}
}

// Keeps description catalog in badger db under dir.
// Ignored when WithDescriptions is applied.
func WithBadgerDir(dir string) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		if dir == "" {
			return errors.New("got empty badger dir")
		}
		target.badgerDir = dir
		return nil
	}
}

// Loads descriptions from YAML file into the active catalog.
func WithDescriptionsFile(path string) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		if path == "" {
			return errors.New("got empty descriptions file path")
		}
		target.descriptionsFile = path
		return nil
	}
}

// Sets protocol labels accepted as transport protocols.
// Default is _tcp and _udp.
func WithRecognizedProtocols(protocols ...string) options.Option[createBrowserParams] {
	return func(target *createBrowserParams) error {
		if len(protocols) == 0 {
			return errors.New("got no protocols")
		}
		for _, p := range protocols {
			if p == "" {
				return errors.New("got empty protocol")
			}
		}
		target.protocols = protocols
		return nil
	}
}
