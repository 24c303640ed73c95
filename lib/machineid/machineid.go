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

// Package machineid identifies the workstation to the tracking server. The
// identifier is derived from stable hardware properties, so a reinstalled
// agent on the same machine reports under the same id.
package machineid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/nkpatro/activity-tracker/lib/defaults"
)

const (
	fingerprintVersion = "v1:"
	// fingerprintHashLen keeps 16 of the 32 digest bytes; 128 bits is
	// plenty for telling machines apart.
	fingerprintHashLen = 16
)

// ID returns the machine identifier persisted under dataDir, generating and
// persisting one on first use. Generation is deterministic over the hardware
// fingerprint, so a lost or corrupted file regenerates the same id as long
// as the hardware is unchanged.
func ID(dataDir string) (uuid.UUID, error) {
	path := filepath.Join(dataDir, defaults.MachineIDFileName)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return uuid.Nil, trace.ConvertSystemError(err)
	}
	if err == nil {
		if id, parseErr := uuid.Parse(strings.TrimSpace(string(data))); parseErr == nil {
			return id, nil
		}
	}

	fp, err := Fingerprint()
	if err != nil {
		return uuid.Nil, trace.Wrap(err)
	}
	id := uuid.NewHash(sha256.New(), uuid.NameSpaceOID, []byte(fp), 4)
	if err := renameio.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return uuid.Nil, trace.ConvertSystemError(err)
	}
	return id, nil
}

// Fingerprint returns a stable fingerprint of this machine, version-prefixed
// as "v1:hash". Machine registration sends it alongside the id so the server
// can dedupe re-registrations.
func Fingerprint() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", trace.ConvertSystemError(err)
	}
	macs, err := hardwareAddrs()
	if err != nil {
		return "", trace.Wrap(err)
	}

	components := []string{
		hostname,
		strings.Join(macs, ","),
		runtime.GOOS,
		runtime.GOARCH,
	}
	// Drop empty components so a machine without visible interfaces still
	// hashes consistently.
	filtered := make([]string, 0, len(components))
	for _, comp := range components {
		if comp != "" {
			filtered = append(filtered, comp)
		}
	}

	// Pipe-joined to keep ["ab","c"] and ["a","bc"] distinct.
	hash := sha256.Sum256([]byte(strings.Join(filtered, "|")))
	return fingerprintVersion + hex.EncodeToString(hash[:fingerprintHashLen]), nil
}

// hardwareAddrs returns the sorted MAC addresses of the physical-looking
// interfaces. Interface enumeration order is not stable across boots, the
// sort is what makes the fingerprint reproducible.
func hardwareAddrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		macs = append(macs, iface.HardwareAddr.String())
	}
	slices.Sort(macs)
	return slices.Compact(macs), nil
}
