package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/notabot/internal/config"
	"github.com/chaz8081/notabot/internal/rate"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the beat loop on a synthetic heart rate",
	Long: `Run the beat loop without a heart-rate monitor. The rate follows a bounded
random walk configured under rate.synthetic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runSynthetic(cfg)
	},
}

func runSynthetic(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	printBanner(cfg, "demo")

	s := cfg.Rate.Synthetic
	walk := rate.Walk{
		Probability: s.Probability,
		Step:        s.Step,
		Min:         s.Min,
		Max:         s.Max,
		Interval:    s.Interval,
	}
	go a.source.RunSynthetic(ctx, walk, nil)

	if err := a.ctl.Start(); err != nil {
		a.shutdown()
		return err
	}
	return a.serve(ctx)
}
