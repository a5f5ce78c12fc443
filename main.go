package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/photonicat/photonicat2_slideshow/catalog"
	"github.com/photonicat/photonicat2_slideshow/config"
	"github.com/photonicat/photonicat2_slideshow/decoder"
	_ "github.com/photonicat/photonicat2_slideshow/decoder/turbojpeg"
	"github.com/photonicat/photonicat2_slideshow/display"
	"github.com/photonicat/photonicat2_slideshow/display/sdl"
	"github.com/photonicat/photonicat2_slideshow/fetch"
	"github.com/photonicat/photonicat2_slideshow/input"
	"github.com/photonicat/photonicat2_slideshow/led"
	"github.com/photonicat/photonicat2_slideshow/render"
	"github.com/photonicat/photonicat2_slideshow/slideshow"
	"github.com/photonicat/photonicat2_slideshow/web"
)

// The GL context is bound to the thread that created it.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		log.Error("slideshow stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat := catalog.New(cfg.FolderPath, cfg.Extension)
	if err := cat.Scan(); err != nil {
		return err
	}
	log.Info("catalog", "dir", cfg.FolderPath, "images", cat.Len())

	platform, err := openPlatform(cfg)
	if err != nil {
		return err
	}
	defer platform.Close()
	width, height := platform.Size()

	renderer, err := render.New(width, height)
	if err != nil {
		return err
	}
	defer renderer.Close()
	if win, ok := platform.(*sdl.Window); ok {
		win.OnResize = renderer.Resize
	}

	dec, err := newDecoder(cfg, width, height)
	if err != nil {
		return err
	}

	stats := slideshow.NewLoadStats(0, 0)
	if cfg.StatsFile != "" {
		if err := stats.Load(cfg.StatsFile); err != nil {
			log.Warn("discarding load stats", "err", err)
		}
		defer func() {
			if err := stats.Save(cfg.StatsFile); err != nil {
				log.Warn("failed to save load stats", "err", err)
			}
		}()
	}

	opts := []slideshow.Option{
		slideshow.WithStats(stats),
		slideshow.WithLogger(log.Default().WithPrefix("textures")),
	}
	if cfg.HTTPAddr != "" {
		opts = append(opts, slideshow.WithThumbnails(cfg.ThumbWidth))
	}
	if cfg.AsyncDecode {
		opts = append(opts, slideshow.WithAsyncDecode())
	}
	pair := slideshow.NewTexturePair(cat, dec, renderer, opts...)
	screen := display.NewScreen(platform, renderer)
	machine := slideshow.NewMachine(slideshow.Timing{
		Display: cfg.Display(),
		Fade:    cfg.Fade(),
		SkipCut: cfg.SkipCut,
	}, pair, cat, screen, nil)

	indicator := led.Open(cfg.LEDGPIO, nil)
	defer indicator.Close()

	l := &loop{
		machine:   machine,
		screen:    screen,
		indicator: indicator,
		poll:      cfg.PollInterval,
	}
	if events, ok := platform.(display.EventSource); ok {
		l.events = events
	}

	if cfg.InputDevice != "" {
		keys, err := input.Open(cfg.InputDevice, cfg.InputGrab, nil)
		if err != nil {
			log.Warn("keyboard input disabled", "err", err)
		} else {
			defer keys.Close()
			go keys.Run()
			l.keys = keys.Commands()
		}
	}

	if cfg.HTTPAddr != "" {
		server := web.New(stats, nil)
		go func() {
			if err := server.Listen(cfg.HTTPAddr); err != nil {
				log.Error("http server", "err", err)
			}
		}()
		defer server.Shutdown()
		l.server = server
		l.remote = server.Commands()
	}

	if cfg.SyncEndpoint != "" {
		syncer := fetch.New(fetch.Config{
			Endpoint: cfg.SyncEndpoint,
			Dir:      cfg.FolderPath,
			Ext:      cfg.Extension,
			Interval: cfg.SyncInterval,
			Width:    cfg.SyncWidth,
			Height:   cfg.SyncHeight,
			Ping:     cfg.SyncPing,
			Caption:  cfg.SyncCaption,
		}, nil)
		go syncer.Run(ctx)
	}

	if err := machine.Start(); err != nil {
		return err
	}
	return l.run(ctx)
}

func openPlatform(cfg config.Config) (display.Platform, error) {
	switch cfg.Platform {
	case "sdl":
		return sdl.Open("slideshow", nil)
	case "kms":
		return openKMS(cfg)
	}
	return nil, fmt.Errorf("unknown platform %q", cfg.Platform)
}

// newDecoder builds the configured backend and wraps it so every image
// reaches the GPU at screen size.
func newDecoder(cfg config.Config, width, height int) (decoder.Decoder, error) {
	dec, err := decoder.New(cfg.Decoder)
	if err != nil {
		if !errors.Is(err, decoder.ErrUnknownBackend) || cfg.Decoder == "std" {
			return nil, err
		}
		log.Warn("decoder unavailable, using std", "decoder", cfg.Decoder, "available", decoder.Names())
		if dec, err = decoder.New("std"); err != nil {
			return nil, err
		}
	}
	mode, err := decoder.ParseFitMode(cfg.FitMode)
	if err != nil {
		return nil, err
	}
	scaler, err := decoder.ScalerByName(cfg.Scaler)
	if err != nil {
		return nil, err
	}
	return &decoder.Fit{Decoder: dec, Width: width, Height: height, Mode: mode, Scaler: scaler}, nil
}

// loop is the single render thread: it drains commands, advances the
// state machine and sleeps while nothing moves.
type loop struct {
	machine   *slideshow.Machine
	screen    *display.Screen
	indicator *led.Indicator
	server    *web.Server
	events    display.EventSource
	keys      <-chan slideshow.Command
	remote    <-chan slideshow.Command
	poll      time.Duration
}

func (l *loop) run(ctx context.Context) error {
	last := time.Now()
	for {
		if ctx.Err() != nil {
			log.Info("signal received, shutting down")
			return nil
		}

		cmds := append(input.Drain(l.keys), input.Drain(l.remote)...)
		var exposed bool
		if l.events != nil {
			var more []slideshow.Command
			more, exposed = l.events.PollEvents()
			cmds = append(cmds, more...)
		}
		for _, cmd := range cmds {
			if cmd == slideshow.Quit {
				log.Info("quit requested")
				return nil
			}
			if err := l.machine.Handle(cmd); err != nil {
				return err
			}
		}

		now := time.Now()
		res, err := l.machine.Tick(now.Sub(last))
		last = now
		if err != nil {
			return err
		}
		if exposed && !res.Drawn {
			if err := l.machine.Redraw(); err != nil {
				return err
			}
		}

		l.indicator.Set(l.machine.Paused())
		if l.server != nil {
			l.server.Publish(l.machine.Status(), l.screen.FPS())
		}

		if res.Idle {
			select {
			case <-ctx.Done():
			case <-time.After(l.poll):
			}
		}
	}
}
