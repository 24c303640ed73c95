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

package machineid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkpatro/activity-tracker/lib/defaults"
)

func TestIDStableAndPersisted(t *testing.T) {
	dir := t.TempDir()

	id, err := ID(dir)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	data, err := os.ReadFile(filepath.Join(dir, defaults.MachineIDFileName))
	require.NoError(t, err)
	require.Equal(t, id.String(), strings.TrimSpace(string(data)))

	again, err := ID(dir)
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func TestIDHonorsExistingFile(t *testing.T) {
	dir := t.TempDir()
	want := uuid.New()
	path := filepath.Join(dir, defaults.MachineIDFileName)
	require.NoError(t, os.WriteFile(path, []byte(want.String()+"\n"), 0o600))

	got, err := ID(dir)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestIDRegeneratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, defaults.MachineIDFileName)
	require.NoError(t, os.WriteFile(path, []byte("not-a-uuid"), 0o600))

	id, err := ID(dir)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	// The regenerated id replaces the corrupt file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, id.String(), strings.TrimSpace(string(data)))
}

func TestIDHasUUIDv4Shape(t *testing.T) {
	id, err := ID(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, uuid.Version(4), id.Version())
	require.Equal(t, uuid.RFC4122, id.Variant())
}

func TestFingerprintFormatAndStability(t *testing.T) {
	fp, err := Fingerprint()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(fp, fingerprintVersion))
	require.Len(t, fp, len(fingerprintVersion)+2*fingerprintHashLen)

	again, err := Fingerprint()
	require.NoError(t, err)
	require.Equal(t, fp, again)
}
