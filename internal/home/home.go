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

// Package home locates the installation's persisted state directory
// (integrity manifest, per-task state, sprite cache) per §6's
// "Configuration surface".
package home

import (
	"os"
	"path/filepath"
)

// Dir returns the Yollayah home directory, creating nothing.
func Dir() string {
	if d := os.Getenv("YOLLAYAH_HOME"); d != "" {
		return d
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return ".yollayah"
	}
	return filepath.Join(h, ".yollayah")
}

// EnsureDir ensures the home directory exists and returns it.
func EnsureDir() (string, error) {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

// SocketPath returns the default Unix domain socket path for the
// stream-socket Transport driver.
func SocketPath() string {
	return filepath.Join(Dir(), "conductor.sock")
}

// ManifestPath returns the path of the Integrity Verifier's manifest file.
func ManifestPath() string {
	return filepath.Join(Dir(), "manifest.json")
}

// SpriteCacheDir returns the directory used for persisted sprite cache
// artifacts (derived variants only; base poses are compiled in).
func SpriteCacheDir() (string, error) {
	d := filepath.Join(Dir(), "sprites")
	if err := os.MkdirAll(d, 0o750); err != nil {
		return "", err
	}
	return d, nil
}
