package model

import "strconv"

// Attribute holding the live instance count of an AggregateEntry.
const AttrServiceCount = "service_count"

// AggregateEntry is a registration type record seen by the top-level browse.
// Its live instance count travels with it as a record attribute.
type AggregateEntry struct {
	DiscoveredRecord
}

func NewAggregateEntry(rec DiscoveredRecord) AggregateEntry {
	e := AggregateEntry{DiscoveredRecord: rec.Clone()}
	if e.Attributes == nil {
		e.Attributes = map[string]string{}
	}
	return e
}

// LiveInstanceCount returns 0 when the counter attribute is unset or broken.
func (e AggregateEntry) LiveInstanceCount() int {
	s, found := e.Attributes[AttrServiceCount]
	if !found {
		return 0
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}

func (e *AggregateEntry) SetLiveInstanceCount(n int) {
	if e.Attributes == nil {
		e.Attributes = map[string]string{}
	}
	e.Attributes[AttrServiceCount] = strconv.Itoa(n)
}

// RegType returns the browsable registration type, e.g. "_http._tcp".
func (e AggregateEntry) RegType() string {
	proto, _ := SplitRegType(e.RegistrationType)
	return NestedKey(e.ServiceName, proto)
}

// ServiceDomain returns the domain the registration type was announced in.
func (e AggregateEntry) ServiceDomain() string {
	_, domain := SplitRegType(e.RegistrationType)
	return domain
}

func (e AggregateEntry) Clone() AggregateEntry {
	return AggregateEntry{DiscoveredRecord: e.DiscoveredRecord.Clone()}
}
