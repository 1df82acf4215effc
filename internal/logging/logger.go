// Package logging provides structured logging for the simulation engine.
// It wraps logrus the way the rest of the ambient stack does: a small
// Logger type constructed from an explicit config, passed around as an
// argument rather than reached for as a package-level singleton (the
// kernel and replay engine take a *Logger explicitly, per the "pass an
// explicit logger context" design note).
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls logger construction.
type Config struct {
	Level  string `yaml:"level" env:"SIM_LOG_LEVEL"`
	Format string `yaml:"format" env:"SIM_LOG_FORMAT"`
}

// DefaultConfig returns the engine's default logging configuration.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// Logger wraps logrus.Logger with the fields the kernel attaches to
// every entry it writes (node id, simulation time, action).
type Logger struct {
	*logrus.Logger
	component string
}

// New constructs a Logger for the named component (e.g. "kernel",
// "lineage", "replay").
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewDefault constructs a Logger using DefaultConfig.
func NewDefault(component string) *Logger {
	return New(component, DefaultConfig())
}

// WithFields attaches the component name plus the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// Tick logs a per-node, per-tick action the way an activity-log append
// would be mirrored to stderr/stdout for operators.
func (l *Logger) Tick(simTime int64, nodeID, action string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["sim_time"] = simTime
	fields["node_id"] = nodeID
	fields["action"] = action
	l.WithFields(fields).Debug("tick action")
}

// Err logs an error with the component's fields attached.
func (l *Logger) Err(err error, message string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	entry := l.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
