// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging provides component-tagged structured logging for the
// bridge packages on top of log/slog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Bridge component identifiers.
const (
	ComponentCodec       Component = "codec"
	ComponentSysEx       Component = "sysex"
	ComponentMCP         Component = "mcp"
	ComponentFader       Component = "fader"
	ComponentEnumeration Component = "enumeration"
	ComponentChannel     Component = "channel"
	ComponentDevice      Component = "device"
	ComponentHost        Component = "host"
	ComponentPort        Component = "port"
	ComponentSettings    Component = "settings"
)

// Format specifies the output format for logging.
type Format int

// Log format options.
const (
	FormatText Format = iota
	FormatJSON
)

var (
	// DefaultLogger is the logger used by the bridge packages.
	DefaultLogger *slog.Logger

	level = new(slog.LevelVar)

	mu sync.RWMutex
)

func init() {
	level.Set(slog.LevelWarn)
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetLogLevel sets the minimum log level.
func SetLogLevel(l slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(l)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return level.Level()
}

// ParseLevel converts a flag value (debug, info, warn, error) to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat converts a flag value (text, json) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// SetLogger replaces the default logger.
func SetLogger(logger *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	DefaultLogger = logger
}

// SetLogFormat configures the default logger to write to w in the given format.
func SetLogFormat(w io.Writer, format Format) {
	mu.Lock()
	defer mu.Unlock()
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatJSON:
		DefaultLogger = slog.New(slog.NewJSONHandler(w, opts))
	default:
		DefaultLogger = slog.New(slog.NewTextHandler(w, opts))
	}
}

func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return DefaultLogger
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	logger().Debug(msg, append([]any{"component", string(component)}, args...)...)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	logger().Info(msg, append([]any{"component", string(component)}, args...)...)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logger().Warn(msg, append([]any{"component", string(component)}, args...)...)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logger().Error(msg, append([]any{"component", string(component)}, args...)...)
}
