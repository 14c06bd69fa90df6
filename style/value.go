package style

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/colornames"
)

// Kind is the type of an evaluated property value.
type Kind uint8

const (
	KindNone Kind = iota
	KindNumber
	KindColor
	KindString
	KindBool
)

// Value is an evaluated property value.
type Value struct {
	Kind   Kind
	Number float64
	Color  gputypes.Color
	String string
	Bool   bool
}

// Number returns a numeric value.
func Number(v float64) Value { return Value{Kind: KindNumber, Number: v} }

// Color returns a color value. Components are straight (not premultiplied).
func Color(c gputypes.Color) Value { return Value{Kind: KindColor, Color: c} }

// RGBA returns a color value from straight components.
func RGBA(r, g, b, a float64) Value { return Color(gputypes.Color{R: r, G: g, B: b, A: a}) }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, String: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Premultiplied returns the color with RGB scaled by alpha.
func (v Value) Premultiplied() gputypes.Color {
	c := v.Color
	return gputypes.Color{R: c.R * c.A, G: c.G * c.A, B: c.B * c.A, A: c.A}
}

func (v Value) GoString() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindColor:
		return fmt.Sprintf("rgba(%g,%g,%g,%g)", v.Color.R, v.Color.G, v.Color.B, v.Color.A)
	case KindString:
		return strconv.Quote(v.String)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "none"
	}
}

// Interpolate blends a toward b by t in [0, 1]. Numbers and colors are
// linear; other kinds switch to b once t reaches 1.
func Interpolate(a, b Value, t float64) Value {
	if t <= 0 {
		return a
	}
	if t >= 1 || a.Kind != b.Kind {
		return b
	}
	switch a.Kind {
	case KindNumber:
		return Number(a.Number + (b.Number-a.Number)*t)
	case KindColor:
		return Color(gputypes.Color{
			R: a.Color.R + (b.Color.R-a.Color.R)*t,
			G: a.Color.G + (b.Color.G-a.Color.G)*t,
			B: a.Color.B + (b.Color.B-a.Color.B)*t,
			A: a.Color.A + (b.Color.A-a.Color.A)*t,
		})
	default:
		return a
	}
}

// ParseColor parses #rgb, #rrggbb, #rrggbbaa, rgb(), rgba() and SVG color
// names.
func ParseColor(s string) (gputypes.Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if c, ok := colornames.Map[s]; ok {
		return gputypes.Color{
			R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255, A: float64(c.A) / 255,
		}, nil
	}
	if s == "transparent" {
		return gputypes.Color{}, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	for _, fn := range []string{"rgba(", "rgb("} {
		if strings.HasPrefix(s, fn) && strings.HasSuffix(s, ")") {
			return parseRGBFunc(s[len(fn) : len(s)-1])
		}
	}
	return gputypes.Color{}, fmt.Errorf("style: invalid color %q", s)
}

func parseHex(h string) (gputypes.Color, error) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return gputypes.Color{}, fmt.Errorf("style: invalid hex color #%s", h)
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return gputypes.Color{}, fmt.Errorf("style: invalid hex color #%s: %w", h, err)
	}
	return gputypes.Color{
		R: float64(n>>24&0xff) / 255,
		G: float64(n>>16&0xff) / 255,
		B: float64(n>>8&0xff) / 255,
		A: float64(n&0xff) / 255,
	}, nil
}

func parseRGBFunc(args string) (gputypes.Color, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return gputypes.Color{}, fmt.Errorf("style: invalid rgb(%s)", args)
	}
	var f [4]float64
	f[3] = 1
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return gputypes.Color{}, fmt.Errorf("style: invalid rgb(%s): %w", args, err)
		}
		if i < 3 {
			v /= 255
		}
		f[i] = v
	}
	return gputypes.Color{R: f[0], G: f[1], B: f[2], A: f[3]}, nil
}

// Duration is a time.Duration read from text such as "300ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("style: invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
