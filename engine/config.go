// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pelletier/go-toml/v2"

	"gviegas/rend3/driver"
	"gviegas/rend3/rhi"
)

const (
	// The maximum number of frames in flight.
	MaxFrame = 3

	dflFrames        = 2
	dflShadowMapSize = 2048
	dflMaxDraw       = 1024
	dflFOV           = 1.0471976 // 60°
)

// Config is used to configure a Renderer.
type Config struct {
	// Render resolution.
	// If either is zero, the back buffer size is used.
	//
	// Default is 0x0.
	Width  int `toml:"width"`
	Height int `toml:"height"`

	// Back buffer size of headless renderers.
	// Renderers that present to a window use the
	// swapchain's size instead.
	//
	// Default is 1280x720.
	BackBufferWidth  int `toml:"back_buffer_width"`
	BackBufferHeight int `toml:"back_buffer_height"`

	// The number of frames in flight.
	// It must be in the range [1, MaxFrame].
	//
	// Default is 2.
	Frames int `toml:"frames"`

	// Render modes.
	//
	// Default is DefaultFlags.
	Flags Flags `toml:"flags"`

	// Post-processing parameters.
	Settings Settings `toml:"settings"`

	// Whether to use reverse-Z when the device supports
	// it.
	//
	// Default is true.
	ReverseZ bool `toml:"reverse_z"`

	// Size of the directional light's shadow map.
	//
	// Default is 2048.
	ShadowMapSize int `toml:"shadow_map_size"`

	// The maximum number of per-draw constant blocks in
	// a frame (draws, lights and full-screen passes).
	// The limit grows when exceeded, taking effect on
	// the following frame.
	//
	// Default is 1024.
	MaxDraw int `toml:"max_draw"`

	// Number of background pipeline compilations.
	// Zero means GOMAXPROCS.
	//
	// Default is 0.
	CompileWorkers int `toml:"compile_workers"`

	// Directory of on-disk shader sources. Changes to
	// files there are picked up while running.
	// If empty, the embedded sources are used.
	//
	// Default is "".
	ShaderDir string `toml:"shader_dir"`

	// Preferred backend name (e.g., "vulkan" or
	// "wgpu"). See rhi.Config.Backend.
	//
	// Default is "".
	Backend string `toml:"backend"`

	// Whether presentation waits for the vertical
	// blank.
	//
	// Default is true.
	VSync bool `toml:"vsync"`

	// Whether to request backend validation.
	//
	// Default is false.
	Validation bool `toml:"validation"`

	// Logger used by the renderer.
	// If nil, the device's logger is used.
	Logger *slog.Logger `toml:"-"`
}

// Settings holds post-processing parameters.
type Settings struct {
	FXAASubpix           float32 `toml:"fxaa_subpix"`
	FXAAEdgeThreshold    float32 `toml:"fxaa_edge_threshold"`
	FXAAEdgeThresholdMin float32 `toml:"fxaa_edge_threshold_min"`
	BloomIntensity       float32 `toml:"bloom_intensity"`
	BloomThreshold       float32 `toml:"bloom_threshold"`
	SharpenStrength      float32 `toml:"sharpen_strength"`
	SharpenClamp         float32 `toml:"sharpen_clamp"`
	ChromaticAberration  float32 `toml:"chromatic_aberration"`
}

// DefaultSettings returns the default post-processing
// parameters.
func DefaultSettings() Settings {
	return Settings{
		FXAASubpix:           1.75,
		FXAAEdgeThreshold:    0.125,
		FXAAEdgeThresholdMin: 0.0312,
		BloomIntensity:       0.2,
		BloomThreshold:       1,
		SharpenStrength:      1,
		SharpenClamp:         0.35,
		ChromaticAberration:  0.005,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BackBufferWidth:  1280,
		BackBufferHeight: 720,
		Frames:           dflFrames,
		Flags:            DefaultFlags,
		Settings:         DefaultSettings(),
		ReverseZ:         true,
		ShadowMapSize:    dflShadowMapSize,
		MaxDraw:          dflMaxDraw,
		VSync:            true,
	}
}

// Device returns the rhi.Config for opening a device
// that presents to win.
// win may be nil for headless rendering.
func (cfg *Config) Device(win driver.Window) *rhi.Config {
	return &rhi.Config{
		Backend:    cfg.Backend,
		Window:     win,
		Validation: cfg.Validation,
		VSync:      cfg.VSync,
		Logger:     cfg.Logger,
	}
}

// LoadConfig reads a TOML configuration from r.
// Keys absent from r keep their DefaultConfig values.
// Unknown keys are an error.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("engine: config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// validate checks cfg and fills zero values that have
// no meaning with their defaults.
func (cfg *Config) validate() error {
	switch {
	case cfg.Frames < 0 || cfg.Frames > MaxFrame:
		return fmt.Errorf("engine: config: frames must be in [1, %d], have %d", MaxFrame, cfg.Frames)
	case cfg.Width < 0 || cfg.Height < 0 || cfg.BackBufferWidth < 0 || cfg.BackBufferHeight < 0:
		return fmt.Errorf("engine: config: negative size")
	case cfg.ShadowMapSize < 0 || cfg.MaxDraw < 0:
		return fmt.Errorf("engine: config: negative limit")
	}
	if cfg.Frames == 0 {
		cfg.Frames = dflFrames
	}
	if cfg.ShadowMapSize == 0 {
		cfg.ShadowMapSize = dflShadowMapSize
	}
	if cfg.MaxDraw == 0 {
		cfg.MaxDraw = dflMaxDraw
	}
	if cfg.BackBufferWidth == 0 || cfg.BackBufferHeight == 0 {
		cfg.BackBufferWidth, cfg.BackBufferHeight = 1280, 720
	}
	return nil
}
