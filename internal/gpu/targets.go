package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/tilemap/internal/cache"
)

// textureGroupLimit bounds the bind groups kept for sampled textures.
const textureGroupLimit = 512

// DepthStencilFormat is the format of the shared depth/stencil attachment.
const DepthStencilFormat = gputypes.TextureFormatDepth24PlusStencil8

// OffscreenFormat is the color format of per-layer offscreen targets.
const OffscreenFormat = gputypes.TextureFormatRGBA8Unorm

type texture struct {
	tex  hal.Texture
	view hal.TextureView
}

// Targets owns the textures rendered into besides the frame target: the
// depth/stencil attachment of the main pass and one color texture per
// offscreen layer. All are sized to the viewport.
type Targets struct {
	device hal.Device

	width, height uint32
	depthStencil  *texture
	offscreen     map[string]*texture

	sampler hal.Sampler
	groups  *cache.Cache[hal.TextureView, hal.BindGroup]
	// retired groups may still be referenced by the frame being recorded.
	retired []hal.BindGroup
}

// NewTargets returns an empty target set.
func NewTargets(device hal.Device) *Targets {
	t := &Targets{
		device:    device,
		offscreen: make(map[string]*texture),
	}
	t.groups = cache.New(textureGroupLimit, func(_ hal.TextureView, g hal.BindGroup) {
		t.retired = append(t.retired, g)
	})
	return t
}

// Resize releases every target when the size changes.
func (t *Targets) Resize(width, height uint32) {
	if t.width == width && t.height == height {
		return
	}
	t.destroyTextures()
	t.width, t.height = width, height
}

// Size returns the current target size.
func (t *Targets) Size() (uint32, uint32) { return t.width, t.height }

// DepthStencil returns the depth/stencil view, creating it on first use.
func (t *Targets) DepthStencil() (hal.TextureView, error) {
	if t.depthStencil != nil {
		return t.depthStencil.view, nil
	}
	tex, err := t.create("tile_depth_stencil", DepthStencilFormat, gputypes.TextureUsageRenderAttachment)
	if err != nil {
		return nil, err
	}
	t.depthStencil = tex
	return tex.view, nil
}

// Offscreen returns the color target of a layer, creating it on first use.
func (t *Targets) Offscreen(layerID string) (hal.TextureView, error) {
	if tex, ok := t.offscreen[layerID]; ok {
		return tex.view, nil
	}
	tex, err := t.create("offscreen_"+layerID, OffscreenFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)
	if err != nil {
		return nil, err
	}
	t.offscreen[layerID] = tex
	return tex.view, nil
}

// HasOffscreen reports whether a layer has rendered into its target.
func (t *Targets) HasOffscreen(layerID string) bool {
	_, ok := t.offscreen[layerID]
	return ok
}

// ReleaseOffscreen destroys the targets of layers not in keep.
func (t *Targets) ReleaseOffscreen(keep map[string]bool) {
	for id, tex := range t.offscreen {
		if keep[id] {
			continue
		}
		t.destroyTexture(tex)
		delete(t.offscreen, id)
	}
}

// TextureGroup returns the group(1) bind group sampling view. Groups are
// kept in an LRU; evicted groups are destroyed by ReleaseRetired.
func (t *Targets) TextureGroup(view hal.TextureView, layout hal.BindGroupLayout) (hal.BindGroup, error) {
	return t.groups.GetOrCreate(view, func() (hal.BindGroup, error) {
		return t.createTextureGroup(view, layout)
	})
}

func (t *Targets) createTextureGroup(view hal.TextureView, layout hal.BindGroupLayout) (hal.BindGroup, error) {
	if t.sampler == nil {
		s, err := t.device.CreateSampler(&hal.SamplerDescriptor{
			Label:        "tile_sampler",
			AddressModeU: gputypes.AddressModeClampToEdge,
			AddressModeV: gputypes.AddressModeClampToEdge,
			AddressModeW: gputypes.AddressModeClampToEdge,
			MagFilter:    gputypes.FilterModeLinear,
			MinFilter:    gputypes.FilterModeLinear,
			MipmapFilter: gputypes.FilterModeLinear,
			LodMaxClamp:  32,
		})
		if err != nil {
			return nil, fmt.Errorf("create sampler: %w", err)
		}
		t.sampler = s
	}
	g, err := t.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "tile_texture_group",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: t.sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create texture bind group: %w", err)
	}
	return g, nil
}

// ReleaseRetired destroys evicted bind groups. Call after submission.
func (t *Targets) ReleaseRetired() {
	for _, g := range t.retired {
		t.device.DestroyBindGroup(g)
	}
	t.retired = t.retired[:0]
}

func (t *Targets) create(label string, format gputypes.TextureFormat, usage gputypes.TextureUsage) (*texture, error) {
	if t.width == 0 || t.height == 0 {
		return nil, fmt.Errorf("create %s: empty viewport", label)
	}
	tex, err := t.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s texture: %w", label, err)
	}
	view, err := t.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: label + "_view"})
	if err != nil {
		t.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create %s texture view: %w", label, err)
	}
	return &texture{tex: tex, view: view}, nil
}

func (t *Targets) destroyTexture(tex *texture) {
	t.groups.Delete(tex.view)
	t.device.DestroyTextureView(tex.view)
	t.device.DestroyTexture(tex.tex)
}

func (t *Targets) destroyTextures() {
	if t.depthStencil != nil {
		t.destroyTexture(t.depthStencil)
		t.depthStencil = nil
	}
	for id, tex := range t.offscreen {
		t.destroyTexture(tex)
		delete(t.offscreen, id)
	}
}

// Destroy releases every texture, bind group and the sampler.
func (t *Targets) Destroy() {
	t.destroyTextures()
	t.groups.Clear()
	t.ReleaseRetired()
	if t.sampler != nil {
		t.device.DestroySampler(t.sampler)
		t.sampler = nil
	}
	t.width, t.height = 0, 0
}
