// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aiku/meshcore-irc/pkg/connector"
	"github.com/aiku/meshcore-irc/pkg/meshcore"
)

var errRadioLost = errors.New("radio link lost")

const bleScanTimeout = 30 * time.Second

type options struct {
	configPath string

	serialPort string
	baudRate   int
	bleAddress string
	tcpAddress string

	listenHost string
	listenPort int
	adminAddr  string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "meshcore-irc",
		Short: "IRC bridge for a MeshCore companion radio",
		Long: `meshcore-irc runs a small IRC server for one client. #public is bridged to
the radio's public channel and direct messages are addressed by the first
characters of a contact's public key.`,
		Version:       Tag,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger(opts.verbose)
			err := run(cmd.Context(), opts, cmd.Flags(), log)
			if err != nil {
				log.Error().Err(err).Msg("Bridge exited with error")
			}
			return err
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}} (commit %s, built %s)\n", Commit, BuildTime))

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default: built-in example config)")
	flags.StringVar(&opts.serialPort, "serial", "", "serial port of the radio, e.g. /dev/ttyUSB0")
	flags.IntVar(&opts.baudRate, "baud", 115200, "serial baud rate")
	flags.StringVar(&opts.bleAddress, "ble", "", "Bluetooth LE address of the radio")
	flags.StringVar(&opts.tcpAddress, "tcp", "", "host:port of a radio exposing its serial protocol over TCP")
	flags.StringVar(&opts.listenHost, "host", "", "IRC listen host (overrides listen_host)")
	flags.IntVar(&opts.listenPort, "port", 0, "IRC listen port (overrides listen_port)")
	flags.StringVar(&opts.adminAddr, "admin-addr", "", "admin API listen address (overrides admin_api_addr)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.MarkFlagsMutuallyExclusive("serial", "ble", "tcp")
	cmd.MarkFlagsOneRequired("serial", "ble", "tcp")
	return cmd
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).
		Level(level).
		With().Timestamp().Logger()
}

// applyFlags overrides config values with the flags that were set.
func (o *options) applyFlags(cfg *connector.Config, flags *pflag.FlagSet) {
	if flags.Changed("host") {
		cfg.ListenHost = o.listenHost
	}
	if flags.Changed("port") {
		cfg.ListenPort = o.listenPort
	}
	if flags.Changed("admin-addr") {
		cfg.AdminAPIAddr = o.adminAddr
	}
}

func (o *options) openTransport(ctx context.Context) (meshcore.Transport, error) {
	switch {
	case o.serialPort != "":
		return meshcore.OpenSerial(o.serialPort, o.baudRate)
	case o.bleAddress != "":
		scanCtx, cancel := context.WithTimeout(ctx, bleScanTimeout)
		defer cancel()
		return meshcore.ConnectBLE(scanCtx, o.bleAddress)
	case o.tcpAddress != "":
		return meshcore.DialTCP(ctx, o.tcpAddress)
	default:
		return nil, errors.New("one of --serial, --ble or --tcp is required")
	}
}

func run(ctx context.Context, opts *options, flags *pflag.FlagSet, log zerolog.Logger) error {
	cfg, err := connector.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	opts.applyFlags(cfg, flags)
	if err := cfg.PostProcess(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	transport, err := opts.openTransport(ctx)
	if err != nil {
		return err
	}
	mesh := meshcore.New(transport, log)
	if cfg.SendAttempts > 0 {
		mesh.MaxAttempts = cfg.SendAttempts
	}
	defer shutdown(mesh, log)

	if err := mesh.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to radio: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-mesh.Done():
			cancel(errRadioLost)
		case <-ctx.Done():
		}
	}()

	bridge := connector.NewMeshConnector(*cfg, mesh, log)
	if err := bridge.Run(ctx); err != nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, errRadioLost) {
		return cause
	}
	log.Info().Msg("Bridge stopped")
	return nil
}

// shutdown stops the mesh client in order: message fetching, the client,
// then the transport.
func shutdown(mesh *meshcore.MeshCore, log zerolog.Logger) {
	mesh.StopAutoMessageFetching()
	mesh.Stop()
	if err := mesh.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("Failed to disconnect from radio")
	}
}
