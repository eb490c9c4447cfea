package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/notabot/internal/ble"
	"github.com/chaz8081/notabot/internal/config"
	"github.com/chaz8081/notabot/internal/monitor"
)

var (
	runAddress string
	runName    string
	runNoStart bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a heart-rate monitor and drive input at every beat",
	Long: `Connect to the configured (or --address) heart-rate monitor, subscribe to
heart-rate notifications and run the beat loop. The hotkey toggles the
loop; the connection stays up while stopped.

Without an address, run scans and lists devices. With the HTTP server
enabled it waits for a device to be selected through POST /select instead.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runAddress, "address", "a", "", "peripheral address (overrides device.address)")
	runCmd.Flags().StringVarP(&runName, "name", "n", "", "peripheral display name")
	runCmd.Flags().BoolVar(&runNoStart, "no-start", false, "connect but wait for the hotkey before beating")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if cfg.Rate.Source == "synthetic" {
		return runSynthetic(cfg)
	}
	if runAddress != "" {
		cfg.Device.Address = runAddress
		cfg.Device.Name = runName
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewTinyGoAdapter()
	scanner := ble.NewScanner(adapter)
	manager := ble.NewManager(adapter, ble.NewRegistry(), ble.ManagerOptions{
		RetryInterval:     cfg.Connection.RetryInterval,
		KeepAliveInterval: cfg.Connection.KeepAliveInterval,
	})

	a, err := newApp(ctx, cfg, manager, scanner)
	if err != nil {
		return err
	}
	printBanner(cfg, "live")

	switch {
	case cfg.Device.Address != "":
		if err := a.ctl.SelectPeripheral(ble.PeripheralRef{Name: cfg.Device.Name, Address: cfg.Device.Address}); err != nil {
			return err
		}
		go connectAndStart(ctx, a.ctl, !runNoStart)
	case cfg.Server.Enabled:
		slog.Info("no device configured, select one through the HTTP API", "addr", cfg.Server.Addr)
	default:
		if err := adapter.Enable(); err != nil {
			return err
		}
		devices, err := a.ctl.Scan(ctx)
		if err != nil {
			return err
		}
		printDevices(os.Stdout, devices)
		return fmt.Errorf("no device selected: rerun with --address or set device.address in %s", config.DefaultConfigPath())
	}

	return a.serve(ctx)
}

// connectAndStart connects with retry, then starts the beat loop.
func connectAndStart(ctx context.Context, ctl *monitor.Controller, start bool) {
	if err := ctl.Connect(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("connect failed", "error", err)
		}
		return
	}
	if !start {
		slog.Info("connected, press the hotkey to start")
		return
	}
	if err := ctl.Start(); err != nil {
		slog.Error("start failed", "error", err)
	}
}
