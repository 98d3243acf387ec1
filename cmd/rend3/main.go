// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Command rend3 renders a procedural demo scene in a
// window.
//
// Keys 1 through 8 toggle SSAO, SSR, TAA, bloom, FXAA,
// sharpening, chromatic aberration and gamma correction.
// F1 through F5 select a G-buffer visualization and F6
// turns it off. G, B, L and P toggle the grid, bounding
// box, light and performance overlays. Clicking casts a
// picking ray.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spf13/cobra"

	"gviegas/rend3/driver"
	"gviegas/rend3/engine"
	"gviegas/rend3/rhi"
)

func init() {
	// GLFW must be called from the main thread.
	runtime.LockOSThread()
}

type options struct {
	config     string
	backend    string
	shaderDir  string
	width      int
	height     int
	vsync      bool
	validation bool
	debug      bool
	headless   int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "rend3",
		Short:         "Render a demo scene with the deferred renderer",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if opts.headless > 0 {
				return runHeadless(cmd.Context(), cfg, opts.headless)
			}
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.config, "config", "c", "", "TOML configuration file")
	f.StringVarP(&opts.backend, "backend", "b", "", "preferred backend (vulkan or wgpu)")
	f.StringVar(&opts.shaderDir, "shader-dir", "", "load and watch shaders from this directory")
	f.IntVar(&opts.width, "width", 1280, "window width")
	f.IntVar(&opts.height, "height", 720, "window height")
	f.BoolVar(&opts.vsync, "vsync", true, "wait for the vertical blank")
	f.BoolVar(&opts.validation, "validation", false, "enable backend validation")
	f.BoolVar(&opts.debug, "debug", false, "log debug messages")
	f.IntVar(&opts.headless, "headless", 0, "render this many frames offscreen and exit")
	return cmd
}

// load reads the configuration file, if any, and applies
// the flags that were set explicitly.
func (o *options) load(cmd *cobra.Command) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if o.config != "" {
		file, err := os.Open(o.config)
		if err != nil {
			return cfg, err
		}
		defer file.Close()
		if cfg, err = engine.LoadConfig(file); err != nil {
			return cfg, err
		}
	}
	f := cmd.Flags()
	if f.Changed("backend") {
		cfg.Backend = o.backend
	}
	if f.Changed("shader-dir") {
		cfg.ShaderDir = o.shaderDir
	}
	if f.Changed("vsync") {
		cfg.VSync = o.vsync
	}
	if f.Changed("validation") {
		cfg.Validation = o.validation
	}
	if f.Changed("width") || f.Changed("height") || o.config == "" {
		cfg.BackBufferWidth, cfg.BackBufferHeight = o.width, o.height
	}
	lvl := slog.LevelInfo
	if o.debug {
		lvl = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	driver.SetLogger(cfg.Logger)
	return cfg, nil
}

func run(ctx context.Context, cfg engine.Config) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("rend3: %w", err)
	}
	defer glfw.Terminate()

	win, err := newWindow("rend3", cfg.BackBufferWidth, cfg.BackBufferHeight)
	if err != nil {
		return fmt.Errorf("rend3: %w", err)
	}
	defer win.Destroy()

	dev, err := rhi.Open(cfg.Device(win))
	if err != nil {
		return err
	}
	defer dev.Destroy()

	r, err := engine.New(dev, &cfg)
	if err != nil {
		return err
	}
	defer r.Destroy()

	d, err := newDemo(dev)
	if err != nil {
		return err
	}
	defer d.destroy()

	win.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		if w == 0 || h == 0 {
			return
		}
		if err := r.SetBackBufferSize(w, h); err != nil {
			cfg.Logger.Warn("rend3: resize failed", "width", w, "height", h, "err", err)
		}
	})
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		if key == glfw.KeyEscape {
			win.SetShouldClose(true)
			return
		}
		r.SetFlags(toggle(r.Flags(), key))
	})
	win.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft || action != glfw.Press {
			return
		}
		// Cursor positions are in screen coordinates.
		x, y := w.GetCursorPos()
		ww, wh := w.GetSize()
		fw, fh := w.GetFramebufferSize()
		if ww == 0 || wh == 0 {
			return
		}
		r.Pick(float32(x)*float32(fw)/float32(ww), float32(y)*float32(fh)/float32(wh))
		f := r.Flags()
		f.Set(engine.PickingRay)
		r.SetFlags(f)
	})

	// Pipelines compile in the background. Until they
	// are ready, frames skip the passes that need them.
	start := time.Now()
	for !win.ShouldClose() && ctx.Err() == nil {
		glfw.PollEvents()
		if w, h := win.Size(); w == 0 || h == 0 {
			glfw.WaitEvents()
			continue
		}
		d.update(float32(time.Since(start).Seconds()))
		if err := r.Render(d.scene); err != nil {
			if errors.Is(err, engine.ErrDestroyed) {
				return err
			}
			cfg.Logger.Warn("rend3: frame failed", "err", err)
		}
	}
	return nil
}

// runHeadless renders n frames to the offscreen back
// buffer. It is meant for smoke testing a backend.
func runHeadless(ctx context.Context, cfg engine.Config, n int) error {
	dev, err := rhi.Open(cfg.Device(nil))
	if err != nil {
		return err
	}
	defer dev.Destroy()

	r, err := engine.New(dev, &cfg)
	if err != nil {
		return err
	}
	defer r.Destroy()

	d, err := newDemo(dev)
	if err != nil {
		return err
	}
	defer d.destroy()

	if err := r.WarmUp(ctx); err != nil {
		return err
	}
	for i := range n {
		d.update(float32(i) / 60)
		if err := r.Render(d.scene); err != nil {
			return err
		}
	}
	s := r.Stats()
	cfg.Logger.Info("rend3: done", "backend", dev.Backend(), "frames", s.Frames, "skipped", s.Skipped, "frame_time", s.FrameTime)
	return nil
}

var toggles = map[glfw.Key]engine.Flags{
	glfw.Key1: engine.SSAO,
	glfw.Key2: engine.SSR,
	glfw.Key3: engine.TAA,
	glfw.Key4: engine.Bloom,
	glfw.Key5: engine.FXAA,
	glfw.Key6: engine.Sharpening,
	glfw.Key7: engine.ChromaticAberration,
	glfw.Key8: engine.Correction,
	glfw.KeyG: engine.SceneGrid,
	glfw.KeyB: engine.AABB,
	glfw.KeyL: engine.LightGizmos,
	glfw.KeyP: engine.PerformanceMetrics,
}

var visualizations = map[glfw.Key]engine.Flags{
	glfw.KeyF1: engine.Albedo,
	glfw.KeyF2: engine.Normal,
	glfw.KeyF3: engine.MaterialParams,
	glfw.KeyF4: engine.Velocity,
	glfw.KeyF5: engine.Depth,
	glfw.KeyF6: 0,
}

func toggle(f engine.Flags, key glfw.Key) engine.Flags {
	if x, ok := toggles[key]; ok {
		f.Toggle(x)
	} else if x, ok := visualizations[key]; ok {
		f.Unset(engine.Albedo | engine.Normal | engine.MaterialParams | engine.Velocity | engine.Depth)
		f.Set(x)
	}
	return f
}
