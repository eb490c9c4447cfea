// Command notabot drives a pointer or keyboard in time with a live heart
// rate read from a Bluetooth LE heart-rate monitor.
//
// Usage:
//
//	notabot scan
//	notabot run [--address AA:BB:CC:DD:EE:FF]
//	notabot demo
//	notabot init-config
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "notabot",
	Short: "Heartbeat-paced input driver",
	Long: `notabot connects to a Bluetooth LE heart-rate monitor and fires a mouse
click or key tap at every R peak of a synthesized ECG, paced by your live
heart rate.

Start with "notabot scan" to find your monitor, then "notabot run --address ...".
"notabot demo" runs the beat loop on a synthetic heart rate.`,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/notabot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(initConfigCmd)
}
