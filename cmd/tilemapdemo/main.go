// Command tilemapdemo renders a few frames of a small style on the noop
// GPU backend and prints frame and placement statistics.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/paulmach/orb"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/tilemap"
	"github.com/gogpu/tilemap/geo"
	"github.com/gogpu/tilemap/source"
	"github.com/gogpu/tilemap/style"
)

func main() {
	var (
		width     = flag.Int("width", 800, "frame width")
		height    = flag.Int("height", 600, "frame height")
		frames    = flag.Int("frames", 30, "number of frames to render")
		zoom      = flag.Float64("zoom", 3, "start zoom")
		config    = flag.String("config", "", "TOML config file")
		stylePath = flag.String("style", "", "TOML style file; a built-in style is used when empty")
		debug     = flag.Bool("debug", false, "draw tile boundaries and padding")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	tilemap.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := tilemap.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = tilemap.LoadConfig(*config); err != nil {
			log.Fatal(err)
		}
	}
	spec := demoStyle()
	if *stylePath != "" {
		var err error
		if spec, err = loadStyle(*stylePath); err != nil {
			log.Fatal(err)
		}
	}

	device, queue, cleanup, err := openNoop()
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer cleanup()

	d := &demo{device: device}
	m, err := tilemap.NewMap(device, queue,
		tilemap.WithConfig(cfg),
		tilemap.WithTileRequester(d.request),
		tilemap.WithDiagnostics(func(diag tilemap.Diagnostic) { log.Print(diag) }),
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := m.SetStyle(spec); err != nil {
		log.Fatal(err)
	}
	target, err := d.texture("frame", uint32(*width), uint32(*height))
	if err != nil {
		log.Fatal(err)
	}

	tr := geo.NewTransform(float64(*width), float64(*height), *zoom, orb.Point{13.4, 52.5})
	opts := tilemap.RenderOptions{
		ShowTileBoundaries: *debug,
		ShowPadding:        *debug,
		FadeDuration:       cfg.FadeDuration.Std(),
	}
	start := time.Now()
	for i := range *frames {
		// Pan east for the first half, then hold still.
		opts.Moving = i < *frames/2
		if opts.Moving {
			tr.Center[0] += 0.05
		}
		if err := m.Render(target, tr, opts); err != nil {
			log.Fatalf("frame %d: %v", i, err)
		}
		if err := d.loadPending(m.Style()); err != nil {
			log.Fatalf("frame %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	fs := m.FrameStats()
	ps := m.PlacementStats()
	fmt.Printf("%d frames in %s\n", *frames, elapsed.Round(time.Microsecond))
	fmt.Printf("last frame: %d passes, %d draws, %d skipped, %d pipeline switches\n",
		fs.Passes, fs.Draws, fs.Skipped, fs.PipelineSwitches)
	fmt.Printf("placement: %d passes, %d commits, %d restarts, %d buckets, %d labels\n",
		ps.Passes, ps.Commits, ps.Invalidations, ps.Buckets, m.Placement().Len())
}

func loadStyle(path string) (style.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return style.Spec{}, err
	}
	var spec style.Spec
	if err := toml.Unmarshal(data, &spec); err != nil {
		return style.Spec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

func demoStyle() style.Spec {
	return style.Spec{
		Sources: []source.Spec{{ID: "streets", Type: source.TypeVector, MaxZoom: 14}},
		Layers: []style.LayerSpec{
			{ID: "background", Type: style.TypeBackground, Paint: map[string]any{"background-color": "#f8f4f0"}},
			{ID: "water", Type: style.TypeFill, Source: "streets", Paint: map[string]any{"fill-color": "#a0c8f0"}},
			{ID: "roads", Type: style.TypeLine, Source: "streets", Paint: map[string]any{
				"line-color": "#ffffff",
				"line-width": map[string]any{"base": 1.5, "stops": []any{[]any{5.0, 0.5}, []any{14.0, 4.0}}},
			}},
			{ID: "places", Type: style.TypeSymbol, Source: "streets"},
		},
	}
}

func openNoop() (hal.Device, hal.Queue, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("no noop adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, err
	}
	return open.Device, open.Queue, func() {
		open.Device.Destroy()
		instance.Destroy()
	}, nil
}

type pendingTiles struct {
	source string
	ids    []source.TileID
}

// demo stands in for a tile loader: it answers requests with one small
// bucket per layer after the frame that asked for them.
type demo struct {
	device  hal.Device
	pending []pendingTiles
	glyphs  hal.TextureView
}

func (d *demo) request(sourceID string, ids []source.TileID) {
	d.pending = append(d.pending, pendingTiles{source: sourceID, ids: ids})
}

func (d *demo) loadPending(st *style.Style) error {
	for _, p := range d.pending {
		c := st.Source(p.source)
		if c == nil {
			continue
		}
		for _, id := range p.ids {
			buckets, err := d.buckets(id)
			if err != nil {
				return err
			}
			if err := c.SetLoaded(id, buckets, time.Now()); err != nil {
				return err
			}
		}
	}
	d.pending = d.pending[:0]
	return nil
}

func (d *demo) buckets(id source.TileID) ([]*source.Bucket, error) {
	var out []*source.Bucket
	for _, layer := range []string{"water", "roads", "places"} {
		b, err := d.bucket(layer, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (d *demo) bucket(layerID string, id source.TileID) (*source.Bucket, error) {
	vertices, err := d.buffer(layerID+"_vertices", 4096, gputypes.BufferUsageVertex)
	if err != nil {
		return nil, err
	}
	indices, err := d.buffer(layerID+"_indices", 1024, gputypes.BufferUsageIndex)
	if err != nil {
		return nil, err
	}
	b := &source.Bucket{
		LayerID:     layerID,
		Vertices:    vertices,
		Indices:     indices,
		IndexFormat: gputypes.IndexFormatUint16,
		Segments:    []source.Segment{{IndexCount: 96}},
	}
	if layerID == "places" {
		if d.glyphs == nil {
			if d.glyphs, err = d.texture("glyph_atlas", 256, 256); err != nil {
				return nil, err
			}
		}
		b.Texture = d.glyphs
		b.Symbols = []source.SymbolInstance{{
			Key:     fmt.Sprintf("Place %d/%d", id.Canonical.X, id.Canonical.Y),
			Anchor:  orb.Point{source.Extent / 2, source.Extent / 2},
			Box:     orb.Bound{Min: orb.Point{-40, -8}, Max: orb.Point{40, 8}},
			Offsets: []orb.Point{{0, 0}, {0, -16}, {0, 16}},
		}}
	}
	return b, nil
}

func (d *demo) buffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	return d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
}

func (d *demo) texture(label string, w, h uint32) (hal.TextureView, error) {
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, err
	}
	return d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: label + "_view"})
}
