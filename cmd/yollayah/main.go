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

// Command yollayah is the Terminal Surface: a Bubble Tea program that talks
// to a running yollayahd over its Unix domain socket (or, with --remote,
// over gRPC), rendering the conversation and avatar, and forwarding
// keystrokes as SurfaceEvents.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yollayah/conductor/internal/config"
	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/transport"
	"github.com/yollayah/conductor/internal/transport/grpctransport"
	"github.com/yollayah/conductor/internal/tui"
	"github.com/yollayah/conductor/internal/version"
)

var (
	socketPath string
	remoteAddr string
)

var rootCmd = &cobra.Command{
	Use:     "yollayah",
	Short:   "Yollayah terminal Surface",
	Long:    `yollayah connects to a running yollayahd Conductor daemon and renders the conversation, tasks, and avatar in your terminal.`,
	Version: version.Get(),
	RunE:    runSurface,
}

func init() {
	rootCmd.Flags().StringVar(&socketPath, "socket", "", "Unix domain socket path (default: the daemon's configured socket)")
	rootCmd.Flags().StringVar(&remoteAddr, "remote", "", "connect to a remote yollayahd over gRPC at host:port instead of the local socket")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "yollayah: %v\n", err)
		os.Exit(1)
	}
}

func runSurface(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, closeTransport, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTransport()

	if err := tr.Send(protocol.SurfaceEvent{
		Kind:         protocol.EventHandshake,
		SurfaceKind:  protocol.SurfaceKindTerminal,
		Capabilities: protocol.CapPlainText | protocol.CapRichText | protocol.CapSprite | protocol.CapTasks,
		Version:      "1",
	}); err != nil {
		return fmt.Errorf("sending handshake: %w", err)
	}

	model := tui.New(tr)
	p := tea.NewProgram(model, tea.WithEnvironment(os.Environ()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

// dial connects either to the local Unix socket or, if --remote was given,
// to a remote yollayahd over gRPC, returning a Transport and a func to tear
// down everything it opened.
func dial(ctx context.Context, cfg *config.Config) (transport.Transport, func(), error) {
	if remoteAddr != "" {
		cc, err := grpc.NewClient(remoteAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dialing %s: %w", remoteAddr, err)
		}
		tr, err := grpctransport.Dial(ctx, cc)
		if err != nil {
			cc.Close()
			return nil, nil, fmt.Errorf("opening stream to %s: %w", remoteAddr, err)
		}
		return tr, func() { tr.Close(); cc.Close() }, nil
	}

	path := socketPath
	if path == "" {
		path = cfg.SocketPath
	}

	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s (is yollayahd running?): %w", path, err)
	}
	sock := transport.NewStreamSocket(conn, cfg.MaxFrameBytes)
	return sock, func() { sock.Close() }, nil
}
