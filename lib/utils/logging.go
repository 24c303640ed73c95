/*
Copyright 2026 The Activity Tracker Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package utils holds small helpers shared across the agent: process logging
// setup, prometheus registration and network address probing.
package utils

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/gravitational/trace"
)

// ParseLogLevel converts a config or CLI level name into a slog level.
// Both "warn" and "warning" are accepted.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, trace.BadParameter("unsupported log level %q", s)
	}
}

// InitLogger configures the process-wide default logger and returns it.
// When logFile is non-empty the logger appends to that file; if the file
// cannot be opened the logger falls back to stderr and reports the failure
// on the returned logger instead of failing the process.
func InitLogger(level slog.Level, logFile string) *slog.Logger {
	var out io.Writer = os.Stderr
	var openErr error
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			openErr = err
		} else {
			out = f
		}
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if openErr != nil {
		logger.Warn("Cannot open log file, logging to stderr.", "file", logFile, "error", openErr)
	}
	return logger
}

// InitLoggerForTests sets the default logger for a test binary: debug output
// when tests run verbose, discarded otherwise.
func InitLoggerForTests() {
	if !flag.Parsed() {
		flag.Parse()
	}
	if !testing.Verbose() {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
}
