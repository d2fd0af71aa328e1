package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openvista/vistalink/internal/logging"
)

// InitLogger applies the runtime logging profile and tags the process-wide
// logger with the application name. Writer and level setup live in the
// logging package; this only derives the tagged logger every component
// inherits.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	log.Logger = log.Logger.With().Str("app", app).Logger()
	return log.Logger
}
