package svcbrowser

import (
	"github.com/horockey/svcbrowser/internal/aggregator"
	"github.com/horockey/svcbrowser/internal/controller/http_controller/dto"
	"github.com/horockey/svcbrowser/internal/model"
	"github.com/horockey/svcbrowser/internal/repository/regtype_descriptions"
)

type (
	Aggregator             = aggregator.Aggregator
	SnapshotFunc           = aggregator.SnapshotFunc
	ErrorFunc              = aggregator.ErrorFunc
	DiscoveredRecord       = model.DiscoveredRecord
	AggregateEntry         = model.AggregateEntry
	DescriptionsRepository = regtype_descriptions.Repository
	RemoteRegType          = dto.RegType
)
