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

// Package tracker defines constants shared across the activity tracker agent.
package tracker

const (
	// Version is the semantic version of the agent, stamped into user agent
	// strings and the --version output.
	Version = "1.0.0"

	// ComponentKey is the name of the log attribute holding the component
	// emitting a log record.
	ComponentKey = "component"

	// ComponentAgent is the top level orchestrator that owns every other
	// component of the running agent.
	ComponentAgent = "agent"

	// ComponentBatcher is the input event aggregator.
	ComponentBatcher = "batcher"

	// ComponentSyncer is the telemetry queue and delivery manager.
	ComponentSyncer = "syncer"

	// ComponentSession is the session state machine.
	ComponentSession = "session"

	// ComponentClient is the HTTP client talking to the tracking server.
	ComponentClient = "client"

	// ComponentCache is the application identity cache.
	ComponentCache = "appcache"

	// ComponentConfig is the configuration store.
	ComponentConfig = "config"

	// ComponentMonitor covers the OS monitor adapters (input, idle,
	// system metrics).
	ComponentMonitor = "monitor"

	// ComponentDaemon is the OS service installer and controller.
	ComponentDaemon = "daemon"
)

const (
	// ExitOK is the process exit code for a successful control command.
	ExitOK = 0

	// ExitFailure is the process exit code for a failed control command or
	// an agent that terminated on a fatal error.
	ExitFailure = 1
)
