package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chaz8081/notabot/internal/actuate"
	"github.com/chaz8081/notabot/internal/audio"
	"github.com/chaz8081/notabot/internal/beat"
	"github.com/chaz8081/notabot/internal/ble"
	"github.com/chaz8081/notabot/internal/config"
	"github.com/chaz8081/notabot/internal/hotkey"
	"github.com/chaz8081/notabot/internal/monitor"
	"github.com/chaz8081/notabot/internal/rate"
	"github.com/chaz8081/notabot/internal/server"
)

// app is the assembled pipeline: rate source, beat loop with its sinks,
// controller, and the optional hotkey, audio and HTTP surfaces.
type app struct {
	cfg    *config.Config
	source *rate.Source
	sched  *beat.Scheduler
	ctl    *monitor.Controller

	hub    *server.Hub
	srv    *server.Server
	beeper *audio.Beeper
}

// newApp wires the pipeline. manager and scanner are nil in demo mode.
func newApp(ctx context.Context, cfg *config.Config, manager *ble.Manager, scanner *ble.Scanner) (*app, error) {
	a := &app{cfg: cfg, source: rate.NewSource(cfg.Rate.FallbackBPM)}

	out := newConsole(os.Stdout)
	clicker := actuate.NewClicker(cfg.Actuation.Method, cfg.Actuation.Button, cfg.Actuation.Key)
	sinks := beat.Multi{out.sink(), clicker.Sink()}

	if cfg.Audio.Enabled {
		b, err := audio.NewBeeper(audio.Options{
			SampleRate: cfg.Audio.SampleRate,
			Frequency:  cfg.Audio.Frequency,
			Duration:   cfg.Audio.Duration,
			Volume:     cfg.Audio.Volume,
			ClipPath:   cfg.Audio.ClipPath,
		})
		if err != nil {
			return nil, fmt.Errorf("audio: %w", err)
		}
		a.beeper = b
		sinks = append(sinks, b.Sink())
	}
	if cfg.Server.Enabled {
		a.hub = server.NewHub()
		sinks = append(sinks, a.hub.Sink())
	}

	a.sched = beat.New(a.source, sinks, beat.Options{
		MinSleep:   cfg.Scheduler.MinSleep,
		DriftEvery: cfg.Scheduler.DriftLogEvery,
		OnBeat: func(stats beat.BeatStats) {
			out.beat(stats)
			if a.hub != nil {
				a.hub.PublishBeat(stats)
			}
		},
	})

	a.ctl = monitor.New(ctx, monitor.Options{
		Manager:     manager,
		Scanner:     scanner,
		Source:      a.source,
		Scheduler:   a.sched,
		ScanTimeout: cfg.Connection.ScanTimeout,
	})
	if a.hub != nil {
		a.ctl.OnChange(a.hub.PublishStatus)
		a.srv = server.New(ctx, a.ctl, a.hub)
	}
	return a, nil
}

// serve runs the optional surfaces until ctx is done, then shuts the
// pipeline down.
func (a *app) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	if a.srv != nil {
		go func() {
			errCh <- a.srv.ListenAndServe(a.cfg.Server.Addr)
		}()
	}

	var events <-chan hotkey.Event
	if a.cfg.Hotkey.Enabled {
		listener := hotkey.NewListener(a.cfg.Hotkey.Keys)
		events = listener.Events()
		// The listener is left running on shutdown; gohook's C cleanup
		// can crash and the OS reclaims the hook on exit.
		go listener.Start()
		slog.Info("hotkey ready", "keys", strings.Join(listener.Keys(), "+"))
	}

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err = <-errCh:
			break loop
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if terr := a.ctl.Toggle(); terr != nil {
				slog.Warn("toggle refused", "error", terr)
			}
		}
	}

	a.shutdown()
	return err
}

func (a *app) shutdown() {
	slog.Info("shutting down")
	a.ctl.Stop()
	a.ctl.Disconnect()

	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("server shutdown", "error", err)
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.beeper != nil {
		if err := a.beeper.Close(); err != nil {
			slog.Warn("audio close", "error", err)
		}
	}
}
