package model

import "maps"

// DiscoveredRecord is a single "came/went" event produced by a browse.
type DiscoveredRecord struct {
	ServiceName      string
	RegistrationType string
	Domain           string
	IsRemoval        bool
	Attributes       map[string]string
}

func (r DiscoveredRecord) Clone() DiscoveredRecord {
	res := r
	res.Attributes = maps.Clone(r.Attributes)
	return res
}

// Key returns the instance-level identity of the record.
func (r DiscoveredRecord) Key() string {
	return IdentityKey(r.Domain, r.RegistrationType, r.ServiceName)
}
