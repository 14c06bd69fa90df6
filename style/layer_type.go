package style

// LayerType is the closed set of layer kinds.
type LayerType string

const (
	TypeBackground    LayerType = "background"
	TypeFill          LayerType = "fill"
	TypeLine          LayerType = "line"
	TypeSymbol        LayerType = "symbol"
	TypeRaster        LayerType = "raster"
	TypeCircle        LayerType = "circle"
	TypeFillExtrusion LayerType = "fill-extrusion"
	TypeHeatmap       LayerType = "heatmap"
	TypeHillshade     LayerType = "hillshade"
	TypeCustom        LayerType = "custom"
)

// Valid reports whether t is a known layer type.
func (t LayerType) Valid() bool {
	switch t {
	case TypeBackground, TypeFill, TypeLine, TypeSymbol, TypeRaster, TypeCircle,
		TypeFillExtrusion, TypeHeatmap, TypeHillshade, TypeCustom:
		return true
	}
	return false
}

// NeedsSource reports whether layers of this type draw tile data.
func (t LayerType) NeedsSource() bool {
	return t != TypeBackground && t != TypeCustom
}

// TileClipped reports whether draws are masked to their tile with the
// stencil buffer.
func (t LayerType) TileClipped() bool {
	return t == TypeFill || t == TypeLine || t == TypeFillExtrusion
}

// defaultPaint holds the value used for a paint property the layer does
// not set.
var defaultPaint = map[LayerType]map[string]Value{
	TypeBackground: {
		"background-color":   RGBA(0, 0, 0, 1),
		"background-opacity": Number(1),
	},
	TypeFill: {
		"fill-color":     RGBA(0, 0, 0, 1),
		"fill-opacity":   Number(1),
		"fill-antialias": Bool(true),
	},
	TypeLine: {
		"line-color":   RGBA(0, 0, 0, 1),
		"line-opacity": Number(1),
		"line-width":   Number(1),
		"line-blur":    Number(0),
	},
	TypeSymbol: {
		"text-color":      RGBA(0, 0, 0, 1),
		"text-opacity":    Number(1),
		"text-halo-color": RGBA(0, 0, 0, 0),
		"text-halo-width": Number(0),
		"icon-opacity":    Number(1),
	},
	TypeRaster: {
		"raster-opacity":        Number(1),
		"raster-fade-duration":  Number(300),
		"raster-brightness-min": Number(0),
		"raster-brightness-max": Number(1),
		"raster-saturation":     Number(0),
		"raster-contrast":       Number(0),
	},
	TypeCircle: {
		"circle-color":   RGBA(0, 0, 0, 1),
		"circle-radius":  Number(5),
		"circle-opacity": Number(1),
		"circle-blur":    Number(0),
	},
	TypeFillExtrusion: {
		"fill-extrusion-color":   RGBA(0, 0, 0, 1),
		"fill-extrusion-opacity": Number(1),
		"fill-extrusion-height":  Number(0),
		"fill-extrusion-base":    Number(0),
	},
	TypeHeatmap: {
		"heatmap-opacity":   Number(1),
		"heatmap-intensity": Number(1),
		"heatmap-radius":    Number(30),
	},
	TypeHillshade: {
		"hillshade-exaggeration":           Number(0.5),
		"hillshade-shadow-color":           RGBA(0, 0, 0, 1),
		"hillshade-highlight-color":        RGBA(1, 1, 1, 1),
		"hillshade-accent-color":           RGBA(0, 0, 0, 1),
		"hillshade-illumination-direction": Number(335),
	},
	TypeCustom: {},
}

var defaultLayout = map[string]Value{
	"visibility": String("visible"),
	"text-size":  Number(16),
}
