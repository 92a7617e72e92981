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

// Package config provides the global configuration surface described in
// spec §6: "process environment selects model, backend host/port, integrity
// level, keep-alive, log level, frame rate caps, concurrency limits." It
// layers an optional ~/.yollayah/config.yaml file under YOLLAYAH_-prefixed
// environment variables via viper, with hard-coded defaults at the bottom
// of the stack.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/yollayah/conductor/internal/home"
	"github.com/yollayah/conductor/internal/integrity"
)

var (
	global   *Config
	globalMu sync.Mutex
)

// Config is the fully resolved, immutable-after-load configuration for one
// process (daemon or terminal client).
type Config struct {
	// Backend
	BackendHost string
	BackendPort int
	KeepAlive   time.Duration
	Model       string

	// Router
	FallbackModels []string

	// Integrity
	IntegrityLevel integrity.Level

	// Logging
	LogLevel string
	Debug    bool

	// Render
	RenderFPS     int
	AnimationFPS  int

	// Concurrency
	MaxConcurrentTasks int
	TaskTimeout        time.Duration

	// Frame
	MaxFrameBytes int

	// Transport
	SocketPath string
}

func defaults(v *viper.Viper) {
	v.SetDefault("backend.host", "127.0.0.1")
	v.SetDefault("backend.port", 11434)
	v.SetDefault("backend.keep_alive", "5m")
	v.SetDefault("backend.model", "llama3.1")
	v.SetDefault("backend.fallback_models", []string{})

	v.SetDefault("integrity.level", "default")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.debug", false)

	v.SetDefault("render.fps", 20)
	v.SetDefault("render.animation_fps", 10)

	v.SetDefault("task.max_concurrent", 10)
	v.SetDefault("task.timeout", "5m")

	v.SetDefault("frame.max_bytes", 16*1024*1024)

	v.SetDefault("transport.socket_path", "")
}

// Load resolves the Config from (in ascending priority) defaults, an
// optional ~/.yollayah/config.yaml, and YOLLAYAH_-prefixed environment
// variables.
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home.Dir())

	v.SetEnvPrefix("YOLLAYAH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	level, err := integrity.ParseLevel(v.GetString("integrity.level"))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	socketPath := v.GetString("transport.socket_path")
	if socketPath == "" {
		socketPath = home.SocketPath()
	}

	return &Config{
		BackendHost:        v.GetString("backend.host"),
		BackendPort:        v.GetInt("backend.port"),
		KeepAlive:          v.GetDuration("backend.keep_alive"),
		Model:              v.GetString("backend.model"),
		FallbackModels:     v.GetStringSlice("backend.fallback_models"),
		IntegrityLevel:     level,
		LogLevel:           v.GetString("log.level"),
		Debug:              v.GetBool("log.debug"),
		RenderFPS:          v.GetInt("render.fps"),
		AnimationFPS:       v.GetInt("render.animation_fps"),
		MaxConcurrentTasks: v.GetInt("task.max_concurrent"),
		TaskTimeout:        v.GetDuration("task.timeout"),
		MaxFrameBytes:      v.GetInt("frame.max_bytes"),
		SocketPath:         socketPath,
	}, nil
}

// Get returns the process-global Config, loading it on first use. A load
// failure falls back to defaults-only so that callers never need to thread
// an error from deep in the Conductor: config errors are themselves a
// Fatal-kind condition checked explicitly at startup via Load, not here.
func Get() *Config {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return global
	}

	cfg, err := Load()
	if err != nil {
		v := viper.New()
		defaults(v)
		cfg = &Config{
			BackendHost:        v.GetString("backend.host"),
			BackendPort:        v.GetInt("backend.port"),
			KeepAlive:          v.GetDuration("backend.keep_alive"),
			Model:              v.GetString("backend.model"),
			IntegrityLevel:     integrity.LevelDefault,
			LogLevel:           v.GetString("log.level"),
			RenderFPS:          v.GetInt("render.fps"),
			AnimationFPS:       v.GetInt("render.animation_fps"),
			MaxConcurrentTasks: v.GetInt("task.max_concurrent"),
			TaskTimeout:        v.GetDuration("task.timeout"),
			MaxFrameBytes:      v.GetInt("frame.max_bytes"),
			SocketPath:         home.SocketPath(),
		}
	}
	global = cfg
	return global
}

// Set overrides the process-global Config, primarily for tests and for the
// CLI layer once flags have been parsed.
func Set(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cfg
}
