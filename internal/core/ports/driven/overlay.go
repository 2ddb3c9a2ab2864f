package driven

import "github.com/custodia-labs/sercha-ingest/internal/core/domain"

// SettingsOverlay applies configuration held outside the config file,
// such as environment variables, on top of stored settings.
type SettingsOverlay interface {
	Apply(settings *domain.Settings) error
}
