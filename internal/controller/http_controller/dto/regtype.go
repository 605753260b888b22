package dto

import (
	"maps"

	"github.com/horockey/svcbrowser/internal/model"
)

type RegType struct {
	ServiceName      string            `json:"service_name"`
	RegistrationType string            `json:"registration_type"`
	Domain           string            `json:"domain"`
	RegType          string            `json:"reg_type"`
	Description      string            `json:"description,omitempty"`
	Count            int               `json:"count"`
	Attributes       map[string]string `json:"attributes,omitempty"`
}

func NewRegType(e model.AggregateEntry, description string) RegType {
	return RegType{
		ServiceName:      e.ServiceName,
		RegistrationType: e.RegistrationType,
		Domain:           e.Domain,
		RegType:          e.RegType(),
		Description:      description,
		Count:            e.LiveInstanceCount(),
		Attributes:       maps.Clone(e.Attributes),
	}
}

// RegTypeToModel restores the entry. Description is dropped.
func RegTypeToModel(rt RegType) model.AggregateEntry {
	e := model.NewAggregateEntry(model.DiscoveredRecord{
		ServiceName:      rt.ServiceName,
		RegistrationType: rt.RegistrationType,
		Domain:           rt.Domain,
		Attributes:       maps.Clone(rt.Attributes),
	})
	e.SetLiveInstanceCount(rt.Count)
	return e
}

type Instance struct {
	Name       string            `json:"name"`
	RegType    string            `json:"reg_type"`
	Domain     string            `json:"domain"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func NewInstance(rec model.DiscoveredRecord) Instance {
	return Instance{
		Name:       rec.ServiceName,
		RegType:    rec.RegistrationType,
		Domain:     rec.Domain,
		Attributes: maps.Clone(rec.Attributes),
	}
}

type Violation struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Diagnostics struct {
	Consistent bool        `json:"consistent"`
	Violations []Violation `json:"violations"`
}
