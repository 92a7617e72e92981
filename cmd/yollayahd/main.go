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

// Command yollayahd runs the Conductor daemon: it owns the Session and
// AvatarState, talks to an Ollama-compatible backend, and accepts Surface
// connections over a Unix domain socket (and, if configured, a gRPC
// listener for remote Surfaces).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/yollayah/conductor/internal/conductor"
	"github.com/yollayah/conductor/internal/config"
	"github.com/yollayah/conductor/internal/home"
	"github.com/yollayah/conductor/internal/integrity"
	"github.com/yollayah/conductor/internal/log"
	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/router"
	"github.com/yollayah/conductor/internal/task"
	"github.com/yollayah/conductor/internal/transport"
	"github.com/yollayah/conductor/internal/transport/grpctransport"
	"github.com/yollayah/conductor/internal/version"
	"github.com/yollayah/conductor/internal/yid"
	"github.com/yollayah/conductor/pkg/backend/ollama"
)

var (
	grpcAddr       string
	genManifest    bool
	skipIntegrity  bool
)

var rootCmd = &cobra.Command{
	Use:     "yollayahd",
	Short:   "Yollayah Conductor daemon",
	Long:    `yollayahd runs the Conductor Core: session state, avatar state, backend streaming, the router, and the task system, reachable by Surfaces over a Unix socket and (optionally) gRPC.`,
	Version: version.Get(),
	RunE:    runDaemon,
}

func init() {
	rootCmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "additional gRPC listen address for remote Surfaces, e.g. :7433 (disabled if empty)")
	rootCmd.Flags().BoolVar(&genManifest, "gen-manifest", false, "write a fresh integrity manifest for the installation and exit")
	rootCmd.Flags().BoolVar(&skipIntegrity, "skip-integrity", false, "skip the startup integrity check (development only)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "yollayahd: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	config.Set(cfg)

	logger := newLogger(cfg)
	log.SetLogger(logger)
	defer log.Sync()

	if genManifest {
		return generateManifest()
	}

	if !skipIntegrity {
		if err := integrity.Verify(cfg.IntegrityLevel, installRoot(), home.ManifestPath()); err != nil {
			return fmt.Errorf("integrity check failed, refusing to start: %w", err)
		}
		cr, err := integrity.ScheduleRecheck("@every 1h", cfg.IntegrityLevel, installRoot(), home.ManifestPath(), func(err error) {
			log.Error("scheduled integrity recheck failed", zap.Error(err))
		})
		if err != nil {
			log.Warn("could not schedule integrity recheck", zap.Error(err))
		} else {
			cr.Start()
			defer cr.Stop()
		}
	}

	backend := ollama.New(ollama.Config{
		Endpoint: fmt.Sprintf("http://%s:%d", cfg.BackendHost, cfg.BackendPort),
	})

	rtr := router.New(router.Config{
		QuickModel:        yid.ModelID(cfg.Model),
		DeepModel:         yid.ModelID(cfg.Model),
		CreativeModel:     yid.ModelID(cfg.Model),
		DefaultModel:      yid.ModelID(cfg.Model),
		FallbackChains:     fallbackChains(cfg),
		QuickWordCeiling:  8,
		DeepWordFloor:     40,
		HealthWindow:      5 * time.Minute,
		UnhealthyFraction: 0.5,
		MinHealthSamples:  5,
	})

	tasks := task.New(cfg.MaxConcurrentTasks, cfg.TaskTimeout)

	core := conductor.New(conductor.Config{
		Backend:   backend,
		Router:    rtr,
		Tasks:     tasks,
		KeepAlive: cfg.KeepAlive,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	if err := startSocketListener(ctx, core, cfg); err != nil {
		return fmt.Errorf("starting socket listener: %w", err)
	}
	if grpcAddr != "" {
		if err := startGRPCListener(ctx, core, grpcAddr); err != nil {
			return fmt.Errorf("starting gRPC listener: %w", err)
		}
	}

	log.Info("yollayahd started", zap.String("socket", cfg.SocketPath), zap.String("grpc_addr", grpcAddr))
	return core.Run(ctx)
}

func fallbackChains(cfg *config.Config) map[yid.ModelID][]yid.ModelID {
	if len(cfg.FallbackModels) == 0 {
		return nil
	}
	chain := make([]yid.ModelID, len(cfg.FallbackModels))
	for i, m := range cfg.FallbackModels {
		chain[i] = yid.ModelID(m)
	}
	return map[yid.ModelID][]yid.ModelID{yid.ModelID(cfg.Model): chain}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var l *zap.Logger
	var err error
	if cfg.Debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func installRoot() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func generateManifest() error {
	m, err := integrity.GenerateManifest(installRoot())
	if err != nil {
		return fmt.Errorf("generating manifest: %w", err)
	}
	if err := integrity.SaveManifest(home.ManifestPath(), m); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	fmt.Printf("wrote manifest with %d entries to %s\n", len(m.Hashes), home.ManifestPath())
	return nil
}

// startSocketListener accepts Unix-socket Surface connections and hands each
// one to the Conductor Core, mirroring §4.2's "the daemon's net.Listener
// accept loop hands a fresh StreamSocket to the Conductor."
func startSocketListener(ctx context.Context, core *conductor.Core, cfg *config.Config) error {
	_ = os.Remove(cfg.SocketPath)
	if _, err := home.EnsureDir(); err != nil {
		return err
	}
	lis, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					log.Warn("socket accept failed", zap.Error(err))
					continue
				}
			}
			sock := transport.NewStreamSocket(conn, cfg.MaxFrameBytes)
			connID := core.Connect(protocol.SurfaceKindTerminal, fullCapabilities(), sock)
			go func() {
				<-sock.Done()
				core.Disconnect(connID)
			}()
		}
	}()

	return nil
}

// startGRPCListener accepts remote Surface connections over gRPC bidi
// streams, per §4.2's network-transparent Transport.
func startGRPCListener(ctx context.Context, core *conductor.Core, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := grpc.NewServer()
	grpctransport.Register(srv, func(tr *grpctransport.Transport) {
		connID := core.Connect(protocol.SurfaceKindTerminal, fullCapabilities(), tr)
		go func() {
			<-ctx.Done()
			core.Disconnect(connID)
			tr.Close()
		}()
	})

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Warn("gRPC server stopped", zap.Error(err))
		}
	}()

	return nil
}

func fullCapabilities() protocol.Capability {
	return protocol.CapPlainText | protocol.CapRichText | protocol.CapSprite | protocol.CapTasks
}
