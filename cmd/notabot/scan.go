package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/notabot/internal/ble"
)

var scanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby Bluetooth LE devices",
	Long: `Scan for advertising Bluetooth LE peripherals and list them with their
addresses. Pass an address to "notabot run --address" to connect.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVarP(&scanTimeout, "timeout", "t", 0, "scan duration (default from config)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	timeout := cfg.Connection.ScanTimeout
	if scanTimeout > 0 {
		timeout = scanTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		return err
	}

	fmt.Printf("Scanning for %s...\n", timeout)
	devices, err := ble.NewScanner(adapter).Scan(ctx, timeout)
	if err != nil {
		return err
	}
	printDevices(os.Stdout, devices)
	return nil
}
