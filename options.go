package tilemap

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilemap/source"
)

// Option configures a Map during creation.
//
// Example:
//
//	m, err := tilemap.NewMap(device, queue,
//	    tilemap.WithConfig(cfg),
//	    tilemap.WithDiagnostics(func(d tilemap.Diagnostic) { log.Println(d) }),
//	)
type Option func(*mapOptions)

// TileRequester is told which tiles a source needs and has no entry for
// yet. The tiles are registered as loading; the requester fills them in
// later with source.Cache.SetLoaded or SetErrored.
type TileRequester func(sourceID string, ids []source.TileID)

type mapOptions struct {
	config      Config
	library     ShaderLibrary
	diagnostics func(Diagnostic)
	clock       func() time.Time
	tiles       TileRequester
	format      gputypes.TextureFormat
}

func defaultOptions() mapOptions {
	return mapOptions{
		config: DefaultConfig(),
		clock:  time.Now,
	}
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *mapOptions) {
		o.config = cfg
	}
}

// WithShaderLibrary resolves programs through lib instead of the builtin
// shaders.
func WithShaderLibrary(lib ShaderLibrary) Option {
	return func(o *mapOptions) {
		o.library = lib
	}
}

// WithDiagnostics receives render diagnostics on the render goroutine.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(o *mapOptions) {
		o.diagnostics = fn
	}
}

// WithClock sets the time source of frames and of the placement budget.
// Tests use it to step time deterministically.
func WithClock(clock func() time.Time) Option {
	return func(o *mapOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTileRequester sets the callback for tiles the viewport needs.
func WithTileRequester(fn TileRequester) Option {
	return func(o *mapOptions) {
		o.tiles = fn
	}
}

// WithTargetFormat sets the color format of frame targets. The default
// is BGRA8Unorm, or the surface format of a DeviceProvider.
func WithTargetFormat(f gputypes.TextureFormat) Option {
	return func(o *mapOptions) {
		o.format = f
	}
}
