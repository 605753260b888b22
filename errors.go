package svcbrowser

import (
	"github.com/horockey/svcbrowser/internal/model"
	"github.com/horockey/svcbrowser/internal/repository/regtype_descriptions"
)

var (
	ErrAlreadyStarted  = model.ErrAlreadyStarted
	ErrSessionStopped  = model.ErrSessionStopped
	ErrRegistryStopped = model.ErrRegistryStopped
)

type (
	TransportError            = model.TransportError
	OrphanInstanceError       = model.OrphanInstanceError
	UnrecognizedProtocolError = model.UnrecognizedProtocolError
	InvariantViolationError   = model.InvariantViolationError
	DescriptionNotFoundError  = regtype_descriptions.DescriptionNotFoundError
)
