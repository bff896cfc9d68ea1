// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package logging configures the process-wide zerolog logger for the
// engine. Configuration happens once; environment variables override the
// selected profile.
package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "TOFU_LOG_LEVEL"
	EnvLogTimestamp = "TOFU_LOG_TIMESTAMP"
	EnvLogNoColor   = "TOFU_LOG_NOCOLOR"
)

// Profile selects a logging baseline.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var (
	configureOnce sync.Once
	root          zerolog.Logger
)

// ConfigureRuntime sets up the runtime profile: info level, timestamps.
func ConfigureRuntime() { Configure(ProfileRuntime) }

// ConfigureTests sets up the test profile: debug level, no timestamps.
func ConfigureTests() { Configure(ProfileTest) }

// Configure initializes the root logger once. Later calls are no-ops.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		level := zerolog.InfoLevel
		timestamp := true
		if profile == ProfileTest {
			level = zerolog.DebugLevel
			timestamp = false
		}
		if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = lvl
		}
		if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
			timestamp = v
		}
		noColor := false
		if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
			noColor = v
		}

		w := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}
		ctx := zerolog.New(w).Level(level).With()
		if timestamp {
			ctx = ctx.Timestamp()
		}
		root = ctx.Logger()
	})
}

// Logger returns a child logger tagged with the component name.
func Logger(component string) zerolog.Logger {
	Configure(ProfileRuntime)
	return root.With().Str("component", component).Logger()
}

func parseLevel(s string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off":
		return zerolog.Disabled, true
	default:
		return 0, false
	}
}

func parseBool(s string) (bool, bool) {
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return v, true
}
