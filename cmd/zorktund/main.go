// Command zorktund is the proxy broker daemon — it listens for Zork
// control connections and brokers SOCKS5-over-WebRTC tunnels between
// getter and giver peers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/proxybridge/zorktun/internal/admin"
	"github.com/proxybridge/zorktun/internal/config"
	"github.com/proxybridge/zorktun/internal/logx"
	"github.com/proxybridge/zorktun/internal/registry"
	"github.com/proxybridge/zorktun/internal/zork"
)

var version = "dev"

var (
	flagAdminPort         int
	flagSTUNServers       []string
	flagHeartbeatInterval int
	flagHeartbeatTimeout  int
	flagDebug             bool
)

var rootCmd = &cobra.Command{
	Use:   "zorktund [ZORK_PORT] [SOCKS_PORT]",
	Short: "Peer-to-peer SOCKS5-over-WebRTC proxy broker",
	Long: `zorktund brokers SOCKS5 tunnels between getter and giver peers over
WebRTC data channels, signaled through a line-oriented Zork control
connection. Run with no arguments to use the documented defaults.`,
	Args: cobra.MaximumNArgs(2),
	RunE: run,
}

func init() {
	rootCmd.Flags().IntVar(&flagAdminPort, "admin-port", 0, "admin/observability WebSocket port (0 disables it)")
	rootCmd.Flags().StringArrayVar(&flagSTUNServers, "stun", nil, "STUN server URL (repeatable; defaults to the built-in list)")
	rootCmd.Flags().IntVar(&flagHeartbeatInterval, "heartbeat-interval", int(config.DefaultHeartbeatInterval.Seconds()), "heartbeat send interval, in seconds")
	rootCmd.Flags().IntVar(&flagHeartbeatTimeout, "heartbeat-timeout", int(config.DefaultHeartbeatTimeout.Seconds()), "heartbeat timeout before a tunnel is considered dead, in seconds")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()

	if len(args) >= 1 {
		port, err := config.ParsePort(args[0])
		if err != nil {
			return usageError(err)
		}
		cfg.ZorkPort = port
	}
	if len(args) >= 2 {
		port, err := config.ParsePort(args[1])
		if err != nil {
			return usageError(err)
		}
		cfg.SocksPort = port
	}
	if len(flagSTUNServers) > 0 {
		cfg.STUNServers = flagSTUNServers
	}
	cfg.AdminPort = flagAdminPort
	cfg.HeartbeatInterval = time.Duration(flagHeartbeatInterval) * time.Second
	cfg.HeartbeatTimeout = time.Duration(flagHeartbeatTimeout) * time.Second
	cfg.Debug = flagDebug

	if cfg.Debug {
		logx.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("zorktund — v%s", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := registry.New()
	logger := logx.New("daemon")

	ln, err := zork.Listen(cfg.ZorkPort)
	if err != nil {
		return err
	}
	defer ln.Close()

	if cfg.AdminPort > 0 {
		srv := admin.NewServer(reg, logx.New("admin"))
		boundPort, err := srv.Start(ctx, cfg.AdminPort)
		if err != nil {
			return fmt.Errorf("failed to start admin endpoint: %w", err)
		}
		logger.Info("admin endpoint listening on :%d", boundPort)
	}

	logger.Success("listening for Zork control connections on :%d", cfg.ZorkPort)
	zork.Serve(ctx, ln, &cfg, reg, logger)
	logger.Info("shutting down")
	return nil
}

func usageError(err error) error {
	return fmt.Errorf("%w\n\n%s", err, "run 'zorktund --help' for usage")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
