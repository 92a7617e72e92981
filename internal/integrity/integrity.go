// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package integrity implements the Integrity Verifier of spec §4.11: a
// startup check of the on-disk installation that runs exactly once, before
// the Conductor starts, and aborts on failure. Three levels are defined:
// L0 (paranoid, VCS-backed), L1 (default, SHA-256 manifest), and L2
// (reserved for future detached-signature verification).
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"github.com/yollayah/conductor/internal/yerrors"
)

// Level selects the strictness of startup verification.
type Level string

const (
	// LevelParanoid (L0) additionally requires a clean VCS working tree.
	// Whether the checkout is behind its upstream is not checked.
	LevelParanoid Level = "paranoid"
	// LevelDefault (L1) verifies a stored SHA-256 manifest, passing
	// silently if no manifest is present (first run).
	LevelDefault Level = "default"
	// LevelSignature (L2) is reserved for future detached-signature
	// verification; it is accepted as a configuration value but currently
	// behaves identically to LevelDefault.
	LevelSignature Level = "signature"
)

// ParseLevel parses a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelParanoid, LevelDefault, LevelSignature:
		return Level(s), nil
	case "":
		return LevelDefault, nil
	default:
		return "", fmt.Errorf("integrity: unknown level %q", s)
	}
}

// Manifest is the persisted `SHA-256(path) = hash` table checked by L1/L2.
type Manifest struct {
	Hashes map[string]string `json:"hashes"`
}

// LoadManifest reads a Manifest from path. A missing file is not an error:
// callers should treat it as "first run" per §4.11.
func LoadManifest(path string) (*Manifest, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("integrity: reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("integrity: parsing manifest: %w", err)
	}
	return &m, true, nil
}

// SaveManifest writes m to path, used by generation mode to refresh the
// manifest after legitimate changes.
func SaveManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("integrity: encoding manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("integrity: creating manifest dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// GenerateManifest walks root and hashes every regular file beneath it,
// producing a fresh Manifest for generation mode.
func GenerateManifest(root string) (*Manifest, error) {
	m := &Manifest{Hashes: make(map[string]string)}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hash, err := hashFile(path)
		if err != nil {
			return err
		}
		m.Hashes[rel] = hash
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("integrity: generating manifest: %w", err)
	}
	return m, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks root's files against manifest at level. It returns a
// yerrors.Classified with Kind Integrity on any mismatch; per §7 this must
// abort before the Conductor starts.
func Verify(level Level, root, manifestPath string) error {
	if level == LevelParanoid {
		if err := verifyVCS(root); err != nil {
			return err
		}
	}

	manifest, present, err := LoadManifest(manifestPath)
	if err != nil {
		return yerrors.IntegrityErr("loading manifest: %w", err)
	}
	if !present {
		// First run: pass silently per §4.11.
		return nil
	}

	for rel, want := range manifest.Hashes {
		got, err := hashFile(filepath.Join(root, rel))
		if err != nil {
			return yerrors.IntegrityErr("hashing %s: %w", rel, err)
		}
		if got != want {
			return yerrors.IntegrityErr("checksum mismatch for %s", rel)
		}
	}
	return nil
}

// verifyVCS runs `git status --porcelain` for L0: the local tree must have
// no uncommitted changes. It does not contact the upstream, so a clean tree
// that is behind it passes. It fails shut (returns an error) if the status
// cannot be determined, since L0 is explicitly the strict mode.
func verifyVCS(root string) error {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return yerrors.IntegrityErr("paranoid mode: VCS status unavailable: %w", err)
	}
	if len(out) != 0 {
		return yerrors.IntegrityErr("paranoid mode: working tree is dirty")
	}
	return nil
}

// ScheduleRecheck runs Verify on the given cron schedule for the lifetime of
// the daemon, invoking onFailure whenever a recheck fails; what happens on
// failure is up to onFailure. It returns the running scheduler so the
// caller can Stop it.
func ScheduleRecheck(schedule string, level Level, root, manifestPath string, onFailure func(error)) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := Verify(level, root, manifestPath); err != nil {
			onFailure(err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("integrity: scheduling recheck: %w", err)
	}
	c.Start()
	return c, nil
}
