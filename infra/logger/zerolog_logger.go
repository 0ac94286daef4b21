package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger tagged with the service name and
// the provided component. FUL_ENV=dev switches to the human-readable console
// writer; any other value emits JSON for log shippers.
func NewZerologLogger(component string) Logger {
	env := strings.ToLower(os.Getenv("FUL_ENV"))
	return newZerologLoggerTo(component, writerFor(env))
}

func newZerologLoggerTo(component string, w io.Writer) Logger {
	ctx := zerolog.New(w).With().
		Timestamp().
		Str("service", "fulfillment").
		Str("component", component)
	return &ZerologLogger{log: ctx.Logger()}
}

func writerFor(env string) io.Writer {
	if env == "dev" {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return os.Stdout
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
