package observability

import (
	"github.com/rs/zerolog"

	logs "github.com/danmuck/continuityctl/internal/logging"
)

// InitLogger returns the process logger tagged with app for request logging.
func InitLogger(app string) zerolog.Logger {
	return logs.Logger().With().Str("app", app).Logger()
}
