package regtype_descriptions

import (
	"strings"

	"github.com/horockey/svcbrowser/internal/model"
)

// Repository maps registration types like "_http._tcp" to human-readable descriptions.
type Repository interface {
	model.MetricsProvider
	Get(regType string) (string, error)
	Put(regType string, description string) error
	All() (map[string]string, error)
}

// NormalizeRegType drops the trailing dot and lowercases the type.
func NormalizeRegType(regType string) string {
	return strings.ToLower(strings.TrimSuffix(regType, "."))
}
