package smpp

import "github.com/rs/zerolog"

// ZerologLogger adapts a zerolog.Logger to the Logger interface used by
// Session/Server/Context. Every binary in this fabric wires one of these
// in place of DefaultLogger.
type ZerologLogger struct {
	Log zerolog.Logger
}

// NewZerologLogger wraps l as a Logger.
func NewZerologLogger(l zerolog.Logger) ZerologLogger {
	return ZerologLogger{Log: l}
}

// InfoF implements Logger interface.
func (zl ZerologLogger) InfoF(msg string, params ...interface{}) {
	zl.Log.Info().Msgf(msg, params...)
}

// ErrorF implements Logger interface.
func (zl ZerologLogger) ErrorF(msg string, params ...interface{}) {
	zl.Log.Error().Msgf(msg, params...)
}
