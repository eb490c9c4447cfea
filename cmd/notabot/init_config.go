package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaz8081/notabot/internal/config"
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default config file",
	Long:  "Write the default configuration to ~/.config/notabot/config.yaml. An existing file is left untouched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return nil
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}
