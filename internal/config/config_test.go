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
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("YOLLAYAH_HOME", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.BackendHost)
	assert.Equal(t, 11434, cfg.BackendPort)
	assert.Equal(t, 20, cfg.RenderFPS)
	assert.Equal(t, 10, cfg.AnimationFPS)
	assert.Equal(t, 10, cfg.MaxConcurrentTasks)
	assert.Equal(t, 16*1024*1024, cfg.MaxFrameBytes)
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("YOLLAYAH_HOME", t.TempDir())
	t.Setenv("YOLLAYAH_BACKEND_MODEL", "codellama")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "codellama", cfg.Model)
}

func TestGetSetRoundTrip(t *testing.T) {
	orig := &Config{Model: "test-model"}
	Set(orig)
	assert.Equal(t, orig, Get())
	t.Cleanup(func() { Set(nil) })
}
