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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gravitational/trace"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/config"
	"github.com/nkpatro/activity-tracker/lib/daemon"
	"github.com/nkpatro/activity-tracker/lib/defaults"
	"github.com/nkpatro/activity-tracker/lib/service"
	"github.com/nkpatro/activity-tracker/lib/utils"
)

const appHelp = `Workstation activity tracking agent.

The agent observes the interactive session on this machine: logins and
locks, application focus, input activity, idle periods and system
utilization, and delivers the records to a central tracking server.

Run without a control flag the process runs the agent in the foreground,
which is also how the installed service runs it.`

// shutdownTimeout bounds the orderly shutdown after a termination signal,
// including the final flush against the server.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", trace.UserMessage(err))
		os.Exit(tracker.ExitFailure)
	}
	os.Exit(tracker.ExitOK)
}

type cliConfig struct {
	// Install registers the agent as an OS service.
	Install bool
	// Uninstall removes the OS service registration.
	Uninstall bool
	// StartService asks the OS to start the installed service.
	StartService bool
	// StopService asks the OS to stop the installed service.
	StopService bool
	// Console forces logging to stderr even when the config names a file.
	Console bool
	// LogFile overrides the configured log destination.
	LogFile string
	// LogLevel overrides the configured log verbosity.
	LogLevel string
	// DataDir overrides the platform data directory.
	DataDir string
}

// controlFlags returns how many mutually exclusive service control flags
// are set.
func (c *cliConfig) controlFlags() int {
	n := 0
	for _, set := range []bool{c.Install, c.Uninstall, c.StartService, c.StopService} {
		if set {
			n++
		}
	}
	return n
}

func Run(args []string) error {
	var ccfg cliConfig
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	app := kingpin.New(defaults.ServiceName, appHelp)
	app.Version(tracker.Version)
	app.HelpFlag.Short('h')
	app.Flag("install", "Install the agent as an OS service started at boot.").BoolVar(&ccfg.Install)
	app.Flag("uninstall", "Remove the agent service registration.").BoolVar(&ccfg.Uninstall)
	app.Flag("start", "Start the installed agent service.").BoolVar(&ccfg.StartService)
	app.Flag("stop", "Stop the installed agent service.").BoolVar(&ccfg.StopService)
	app.Flag("console", "Run in the foreground logging to stderr.").BoolVar(&ccfg.Console)
	app.Flag("logfile", "Write logs to this file instead of the configured destination.").StringVar(&ccfg.LogFile)
	app.Flag("loglevel", "Log verbosity.").EnumVar(&ccfg.LogLevel, "debug", "info", "warning", "error")
	app.Flag("data-dir", "Directory holding the agent configuration and local state.").StringVar(&ccfg.DataDir)

	if _, err := app.Parse(args); err != nil {
		return trace.Wrap(err)
	}
	if ccfg.controlFlags() > 1 {
		return trace.BadParameter("only one of --install, --uninstall, --start or --stop may be given")
	}

	// Control commands talk to an operator on a terminal, so they log to
	// stderr; the agent path re-initializes logging from its config file.
	level := slog.LevelInfo
	if ccfg.LogLevel != "" {
		var err error
		if level, err = utils.ParseLogLevel(ccfg.LogLevel); err != nil {
			return trace.Wrap(err)
		}
	}
	utils.InitLogger(level, "")

	switch {
	case ccfg.Install:
		return trace.Wrap(daemon.Install(ctx, daemon.Config{DataDir: ccfg.DataDir}))
	case ccfg.Uninstall:
		return trace.Wrap(daemon.Uninstall(ctx, daemon.Config{DataDir: ccfg.DataDir}))
	case ccfg.StartService:
		return trace.Wrap(daemon.Start(ctx, daemon.Config{DataDir: ccfg.DataDir}))
	case ccfg.StopService:
		return trace.Wrap(daemon.Stop(ctx, daemon.Config{DataDir: ccfg.DataDir}))
	}
	return trace.Wrap(runAgent(ctx, &ccfg))
}

// runAgent runs the tracking agent until the process receives a
// termination signal.
func runAgent(ctx context.Context, ccfg *cliConfig) error {
	dataDir, err := defaults.EnsureDataDir(ccfg.DataDir)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	store, err := config.NewStore(config.StoreConfig{Dir: dataDir})
	if err != nil {
		return trace.Wrap(err)
	}
	settings := store.Get()

	levelName := ccfg.LogLevel
	if levelName == "" {
		levelName = settings.LogLevel
	}
	level, err := utils.ParseLogLevel(levelName)
	if err != nil {
		return trace.Wrap(err)
	}
	logFile := ccfg.LogFile
	if logFile == "" {
		logFile = settings.LogFilePath
	}
	if ccfg.Console {
		logFile = ""
	}
	utils.InitLogger(level, logFile)

	agent, err := service.New(service.Config{DataDir: dataDir})
	if err != nil {
		return trace.Wrap(err)
	}
	if err := agent.Start(ctx); err != nil {
		return trace.Wrap(err)
	}

	<-ctx.Done()
	slog.Info("Signal received, shutting down.")

	// The signal context is already canceled; the shutdown needs its own
	// deadline to finish the final flush.
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return trace.Wrap(agent.Close(closeCtx))
}
