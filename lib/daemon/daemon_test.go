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

package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkpatro/activity-tracker/lib/utils"
)

func TestMain(m *testing.M) {
	utils.InitLoggerForTests()
	os.Exit(m.Run())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.CheckAndSetDefaults())

	self, err := os.Executable()
	require.NoError(t, err)
	require.Equal(t, self, cfg.ExecPath)
	require.Equal(t, systemdUnitDir, cfg.UnitDir)
	require.NotNil(t, cfg.Logger)
	require.Equal(t, filepath.Join(systemdUnitDir, "activity-tracker.service"), cfg.unitPath())
}

func TestConfigRejectsRelativePaths(t *testing.T) {
	cfg := Config{ExecPath: "bin/agent"}
	require.Error(t, cfg.CheckAndSetDefaults())

	cfg = Config{ExecPath: "/usr/local/bin/agent", DataDir: "var/data"}
	require.Error(t, cfg.CheckAndSetDefaults())
}

func TestUnitFile(t *testing.T) {
	cfg := Config{ExecPath: "/usr/local/bin/activity-tracker", UnitDir: t.TempDir()}
	require.NoError(t, cfg.CheckAndSetDefaults())

	unit := cfg.unitFile()
	require.Contains(t, unit, "ExecStart=/usr/local/bin/activity-tracker\n")
	require.Contains(t, unit, "Restart=on-failure")
	require.Contains(t, unit, "WantedBy=multi-user.target")
	require.False(t, strings.Contains(unit, "--data-dir"))
}

func TestUnitFileCarriesDataDir(t *testing.T) {
	cfg := Config{
		ExecPath: "/usr/local/bin/activity-tracker",
		DataDir:  "/var/lib/activity-tracker",
		UnitDir:  t.TempDir(),
	}
	require.NoError(t, cfg.CheckAndSetDefaults())
	require.Contains(t, cfg.unitFile(),
		"ExecStart=/usr/local/bin/activity-tracker --data-dir=/var/lib/activity-tracker\n")
}
