// Package logging is the process-wide printf-style logger.
//
// Call sites import it as `logs` and format messages as
// `pkg.Type.method key=value ...`. The backend is zerolog; Configure picks the
// output profile once per process.
package logging

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	current.Store(&l)
}

func setLogger(l zerolog.Logger) {
	current.Store(&l)
}

// Logger returns the configured zerolog logger for structured call sites.
func Logger() zerolog.Logger {
	return *current.Load()
}

func Tracef(format string, args ...any) {
	current.Load().Trace().Msg(fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) {
	current.Load().Debug().Msg(fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	current.Load().Info().Msg(fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	current.Load().Warn().Msg(fmt.Sprintf(format, args...))
}

func Errf(format string, args ...any) {
	current.Load().Error().Msg(fmt.Sprintf(format, args...))
}
