// Package logger provides structured logging for the docvcs server and CLI.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with docvcs component helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console output for development
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// NewLogger creates a logger tagged with service=docvcs.
func NewLogger(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "docvcs").
		Logger()
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return &Logger{zlog: zlog}
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

// Info starts an info event.
func (l *Logger) Info() *zerolog.Event { return l.zlog.Info() }

// Debug starts a debug event.
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// Warn starts a warning event.
func (l *Logger) Warn() *zerolog.Event { return l.zlog.Warn() }

// Error starts an error event.
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// WithDocument returns a logger carrying a document id.
func (l *Logger) WithDocument(documentID string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("document_id", documentID).Logger()}
}

// GrpcLogger returns a logger for one gRPC method.
func (l *Logger) GrpcLogger(method string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "grpc").
			Str("method", method).
			Logger(),
	}
}

// EngineLogger returns the zerolog logger handed to engine.Options.
func (l *Logger) EngineLogger() *zerolog.Logger {
	zlog := l.zlog.With().Str("layer", "core").Logger()
	return &zlog
}

// DbLogger returns a logger for a storage driver.
func (l *Logger) DbLogger(driver string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "storage").
			Str("driver", driver).
			Logger(),
	}
}

// LogOperation logs one engine operation issued from the CLI.
func (l *Logger) LogOperation(op, documentID string, duration time.Duration, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Warn().Err(err)
	}
	event.
		Str("op", op).
		Str("document_id", documentID).
		Dur("duration_ms", duration).
		Msg("operation finished")
}

// LogGrpcRequest logs a finished gRPC call. Client errors are logged at
// warn, server errors at error.
func (l *Logger) LogGrpcRequest(method, code string, duration time.Duration, err error) {
	var event *zerolog.Event
	switch {
	case err == nil:
		event = l.zlog.Info()
	case code == "Internal" || code == "Unavailable" || code == "Unknown":
		event = l.zlog.Error().Err(err)
	default:
		event = l.zlog.Warn().Err(err)
	}
	event.
		Str("component", "grpc").
		Str("method", method).
		Str("code", code).
		Dur("duration_ms", duration).
		Msg("gRPC request completed")
}

// LogServerStart logs server startup.
func (l *Logger) LogServerStart(addr, driver, path string) {
	l.zlog.Info().
		Str("event", "server_start").
		Str("addr", addr).
		Str("storage", driver).
		Str("path", path).
		Msg("docvcs server starting")
}

// LogServerReady logs when the server accepts connections.
func (l *Logger) LogServerReady(grpcAddr, httpAddr string) {
	l.zlog.Info().
		Str("event", "server_ready").
		Str("grpc_addr", grpcAddr).
		Str("http_addr", httpAddr).
		Msg("docvcs server ready to accept connections")
}

// LogServerShutdown logs server shutdown.
func (l *Logger) LogServerShutdown(reason string) {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Str("reason", reason).
		Msg("docvcs server shutting down")
}

var globalLogger *Logger

// InitGlobalLogger installs the global logger, also as zerolog's log.Logger.
func InitGlobalLogger(cfg Config) *Logger {
	globalLogger = NewLogger(cfg)
	log.Logger = globalLogger.zlog
	return globalLogger
}

// GetGlobalLogger returns the global logger, creating an info-level console
// logger on first use.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{Level: "info", Pretty: true})
	}
	return globalLogger
}
