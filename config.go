// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tilemap

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/tilemap/internal/painter"
	"github.com/gogpu/tilemap/placement"
	"github.com/gogpu/tilemap/style"
)

// Config holds the tunables of a Map. The zero value of a field selects
// its default only where noted; use DefaultConfig as the starting point.
type Config struct {
	// StencilValues is the number of distinct stencil values, 256 for an
	// 8-bit stencil buffer.
	StencilValues int `toml:"stencil_values"`
	// DepthEpsilon is the depth step between two sublayers.
	DepthEpsilon float64 `toml:"depth_epsilon"`
	// SublayersPerLayer is the number of depth slots reserved per layer.
	SublayersPerLayer int `toml:"sublayers_per_layer"`

	// FadeDuration is the default label fade time of RenderOptions.
	FadeDuration style.Duration `toml:"fade_duration"`
	// PlacementBudget bounds the placement work of one frame.
	PlacementBudget style.Duration `toml:"placement_budget"`
	// TransitionDuration is the property transition of styles that set
	// none of their own.
	TransitionDuration style.Duration `toml:"transition_duration"`

	// CollisionGridCell is the label collision grid cell in pixels.
	CollisionGridCell float64 `toml:"collision_grid_cell"`
	// CompileShadersToSPIRV translates WGSL with naga before module
	// creation, for backends that only take SPIR-V.
	CompileShadersToSPIRV bool `toml:"compile_shaders_to_spirv"`
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		StencilValues:      256,
		DepthEpsilon:       painter.DefaultDepthEpsilon,
		SublayersPerLayer:  painter.DefaultSublayersPerLayer,
		FadeDuration:       style.Duration(300 * time.Millisecond),
		PlacementBudget:    style.Duration(2 * time.Millisecond),
		TransitionDuration: style.Duration(300 * time.Millisecond),
		CollisionGridCell:  placement.DefaultGridCell,
	}
}

// ParseConfig reads a TOML document over DefaultConfig. Keys that are
// not Config fields are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("tilemap: config: %w\n%s", err, strict.String())
		}
		return Config{}, fmt.Errorf("tilemap: config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("tilemap: read config: %w", err)
	}
	return ParseConfig(data)
}

// Marshal encodes the config as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate reports values no Map can run with.
func (c Config) Validate() error {
	switch {
	case c.StencilValues < 2:
		return fmt.Errorf("tilemap: config: stencil_values %d < 2", c.StencilValues)
	case c.DepthEpsilon <= 0 || c.DepthEpsilon >= 1:
		return fmt.Errorf("tilemap: config: depth_epsilon %g out of (0, 1)", c.DepthEpsilon)
	case c.SublayersPerLayer < 1:
		return fmt.Errorf("tilemap: config: sublayers_per_layer %d < 1", c.SublayersPerLayer)
	case c.FadeDuration < 0 || c.PlacementBudget < 0 || c.TransitionDuration < 0:
		return errors.New("tilemap: config: negative duration")
	case c.CollisionGridCell < 0:
		return fmt.Errorf("tilemap: config: collision_grid_cell %g < 0", c.CollisionGridCell)
	}
	return nil
}
