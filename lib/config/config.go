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

// Package config loads and persists the agent settings kept in the INI file
// activity_tracker.conf in the per-user data directory.
package config

import (
	"log/slog"
	"strconv"
	"time"

	"gopkg.in/ini.v1"

	"github.com/nkpatro/activity-tracker/lib/defaults"
)

// Recognized INI keys. Unknown keys in the file are ignored; saving always
// writes the full recognized set.
const (
	keyServerURL          = "ServerUrl"
	keyDataSendInterval   = "DataSendInterval"
	keyIdleTimeThreshold  = "IdleTimeThreshold"
	keyMachineID          = "MachineId"
	keyTrackKeyboardMouse = "TrackKeyboardMouse"
	keyTrackApplications  = "TrackApplications"
	keyTrackSystemMetrics = "TrackSystemMetrics"
	keyMultiUserMode      = "MultiUserMode"
	keyDefaultUsername    = "DefaultUsername"
	keyLogLevel           = "LogLevel"
	keyLogFilePath        = "LogFilePath"
)

// Config is the typed view of the agent settings. Intervals are stored as
// durations in memory and as integer milliseconds in the file.
type Config struct {
	// ServerURL is the base URL of the tracking server.
	ServerURL string
	// DataSendInterval is the sync flush interval. Zero means flush on
	// every enqueue.
	DataSendInterval time.Duration
	// IdleTimeThreshold is how long input must be absent before the user
	// counts as AFK. Never below defaults.MinIdleThreshold.
	IdleTimeThreshold time.Duration
	// MachineID identifies this machine to the server. Generated from the
	// system fingerprint when empty.
	MachineID string
	// TrackKeyboardMouse enables the input monitor.
	TrackKeyboardMouse bool
	// TrackApplications enables focus tracking and app usage intervals.
	TrackApplications bool
	// TrackSystemMetrics enables periodic CPU/GPU/memory sampling.
	TrackSystemMetrics bool
	// MultiUserMode makes the agent follow user switching with a session
	// per user instead of reporting everything under one account.
	MultiUserMode bool
	// DefaultUsername overrides the OS account name in session reports.
	DefaultUsername string
	// LogLevel is one of debug, info, warning, error.
	LogLevel string
	// LogFilePath redirects logging from stderr into a file.
	LogFilePath string
}

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		ServerURL:          "http://localhost:8080",
		DataSendInterval:   defaults.FlushInterval,
		IdleTimeThreshold:  defaults.IdleThreshold,
		TrackKeyboardMouse: true,
		TrackApplications:  true,
		TrackSystemMetrics: true,
		LogLevel:           "info",
	}
}

// decode overlays file values onto the defaults. Invalid integers are
// clamped with a warning, invalid booleans keep their defaults, unknown
// keys are ignored.
func decode(file *ini.File, logger *slog.Logger) Config {
	cfg := Default()
	sec := file.Section(ini.DefaultSection)

	if v := sec.Key(keyServerURL).String(); v != "" {
		cfg.ServerURL = v
	}
	if sec.HasKey(keyDataSendInterval) {
		v, err := sec.Key(keyDataSendInterval).Int()
		switch {
		case err != nil:
			logger.Warn("Invalid integer in config, keeping default.",
				"key", keyDataSendInterval, "value", sec.Key(keyDataSendInterval).String())
		case v < 0:
			logger.Warn("Negative interval in config, clamping to zero.",
				"key", keyDataSendInterval, "value", v)
			cfg.DataSendInterval = 0
		default:
			cfg.DataSendInterval = time.Duration(v) * time.Millisecond
		}
	}
	if sec.HasKey(keyIdleTimeThreshold) {
		v, err := sec.Key(keyIdleTimeThreshold).Int()
		switch {
		case err != nil:
			logger.Warn("Invalid integer in config, keeping default.",
				"key", keyIdleTimeThreshold, "value", sec.Key(keyIdleTimeThreshold).String())
		case time.Duration(v)*time.Millisecond < defaults.MinIdleThreshold:
			logger.Warn("Idle threshold below minimum, clamping.",
				"key", keyIdleTimeThreshold, "value", v,
				"minimum_ms", int64(defaults.MinIdleThreshold/time.Millisecond))
			cfg.IdleTimeThreshold = defaults.MinIdleThreshold
		default:
			cfg.IdleTimeThreshold = time.Duration(v) * time.Millisecond
		}
	}
	if v := sec.Key(keyMachineID).String(); v != "" {
		cfg.MachineID = v
	}
	decodeBool(sec, keyTrackKeyboardMouse, &cfg.TrackKeyboardMouse, logger)
	decodeBool(sec, keyTrackApplications, &cfg.TrackApplications, logger)
	decodeBool(sec, keyTrackSystemMetrics, &cfg.TrackSystemMetrics, logger)
	decodeBool(sec, keyMultiUserMode, &cfg.MultiUserMode, logger)
	if v := sec.Key(keyDefaultUsername).String(); v != "" {
		cfg.DefaultUsername = v
	}
	if v := sec.Key(keyLogLevel).String(); v != "" {
		cfg.LogLevel = v
	}
	if v := sec.Key(keyLogFilePath).String(); v != "" {
		cfg.LogFilePath = v
	}
	return cfg
}

func decodeBool(sec *ini.Section, key string, dst *bool, logger *slog.Logger) {
	if !sec.HasKey(key) {
		return
	}
	v, err := sec.Key(key).Bool()
	if err != nil {
		logger.Warn("Invalid boolean in config, keeping default.",
			"key", key, "value", sec.Key(key).String())
		return
	}
	*dst = v
}

// encode renders the full recognized key set.
func encode(cfg Config) *ini.File {
	file := ini.Empty()
	sec := file.Section(ini.DefaultSection)
	sec.Key(keyServerURL).SetValue(cfg.ServerURL)
	sec.Key(keyDataSendInterval).SetValue(strconv.FormatInt(int64(cfg.DataSendInterval/time.Millisecond), 10))
	sec.Key(keyIdleTimeThreshold).SetValue(strconv.FormatInt(int64(cfg.IdleTimeThreshold/time.Millisecond), 10))
	sec.Key(keyMachineID).SetValue(cfg.MachineID)
	sec.Key(keyTrackKeyboardMouse).SetValue(strconv.FormatBool(cfg.TrackKeyboardMouse))
	sec.Key(keyTrackApplications).SetValue(strconv.FormatBool(cfg.TrackApplications))
	sec.Key(keyTrackSystemMetrics).SetValue(strconv.FormatBool(cfg.TrackSystemMetrics))
	sec.Key(keyMultiUserMode).SetValue(strconv.FormatBool(cfg.MultiUserMode))
	sec.Key(keyDefaultUsername).SetValue(cfg.DefaultUsername)
	sec.Key(keyLogLevel).SetValue(cfg.LogLevel)
	sec.Key(keyLogFilePath).SetValue(cfg.LogFilePath)
	return file
}

// normalize applies the clamping rules to programmatic mutations so a Set
// cannot store values a file load would have rejected.
func normalize(cfg *Config, logger *slog.Logger) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = Default().ServerURL
	}
	if cfg.DataSendInterval < 0 {
		logger.Warn("Negative send interval, clamping to zero.")
		cfg.DataSendInterval = 0
	}
	if cfg.IdleTimeThreshold < defaults.MinIdleThreshold {
		logger.Warn("Idle threshold below minimum, clamping.",
			"minimum_ms", int64(defaults.MinIdleThreshold/time.Millisecond))
		cfg.IdleTimeThreshold = defaults.MinIdleThreshold
	}
}
