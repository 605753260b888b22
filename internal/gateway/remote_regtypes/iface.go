package remote_regtypes

import (
	"context"

	"github.com/horockey/svcbrowser/internal/controller/http_controller/dto"
	"github.com/horockey/svcbrowser/internal/model"
)

// Gateway reads the visible set published by another node.
type Gateway interface {
	model.MetricsProvider
	GetVisibleSet(ctx context.Context, baseURL string) ([]dto.RegType, error)
}
