package style

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Expression computes a property value for a zoom level.
type Expression interface {
	Evaluate(zoom float64) Value
	// ZoomDependent reports whether the value varies with zoom.
	ZoomDependent() bool
}

// Constant is a zoom-independent expression.
type Constant struct {
	Value Value
}

func (c Constant) Evaluate(float64) Value { return c.Value }
func (c Constant) ZoomDependent() bool    { return false }

// Stop is one zoom/value pair of a ZoomFunction.
type Stop struct {
	Zoom  float64
	Value Value
}

// ZoomFunction interpolates between stops by zoom. Base sets the
// exponential curve (1 is linear). Step selects the lower stop without
// interpolating.
type ZoomFunction struct {
	Stops []Stop
	Base  float64
	Step  bool
}

func (f ZoomFunction) ZoomDependent() bool { return true }

func (f ZoomFunction) Evaluate(zoom float64) Value {
	n := len(f.Stops)
	switch {
	case n == 0:
		return Value{}
	case zoom <= f.Stops[0].Zoom:
		return f.Stops[0].Value
	case zoom >= f.Stops[n-1].Zoom:
		return f.Stops[n-1].Value
	}
	i := sort.Search(n, func(i int) bool { return f.Stops[i].Zoom > zoom }) - 1
	lo, hi := f.Stops[i], f.Stops[i+1]
	if f.Step {
		return lo.Value
	}
	base := f.Base
	if base == 0 {
		base = 1
	}
	return Interpolate(lo.Value, hi.Value, interpolationFactor(zoom, base, lo.Zoom, hi.Zoom))
}

func interpolationFactor(input, base, lower, upper float64) float64 {
	diff := upper - lower
	if diff == 0 {
		return 0
	}
	progress := input - lower
	if base == 1 {
		return progress / diff
	}
	return (math.Pow(base, progress) - 1) / (math.Pow(base, diff) - 1)
}

// ParseExpression converts the raw value of property name from a style
// document into an expression. Accepted forms are an Expression, a Value,
// numbers, booleans, strings and tables with a "stops" array of
// [zoom, value] pairs plus optional "base" and "type" keys. Strings are
// parsed as colors for properties whose name ends in "-color".
func ParseExpression(name string, raw any) (Expression, error) {
	color := strings.HasSuffix(name, "-color")
	switch v := raw.(type) {
	case Expression:
		return v, nil
	case Value:
		return Constant{Value: v}, nil
	case map[string]any:
		return parseFunction(v, color)
	}
	val, err := parseValue(raw, color)
	if err != nil {
		return nil, err
	}
	return Constant{Value: val}, nil
}

func parseValue(raw any, color bool) (Value, error) {
	switch v := raw.(type) {
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case bool:
		return Bool(v), nil
	case string:
		if !color {
			return String(v), nil
		}
		c, err := ParseColor(v)
		if err != nil {
			return Value{}, err
		}
		return Color(c), nil
	case Value:
		return v, nil
	default:
		return Value{}, fmt.Errorf("style: unsupported property value %T", raw)
	}
}

func parseFunction(m map[string]any, color bool) (Expression, error) {
	rawStops, ok := m["stops"].([]any)
	if !ok || len(rawStops) == 0 {
		return nil, fmt.Errorf("style: function without stops")
	}
	fn := ZoomFunction{Base: 1}
	if b, ok := m["base"]; ok {
		bv, err := parseValue(b, false)
		if err != nil || bv.Kind != KindNumber {
			return nil, fmt.Errorf("style: function base must be a number")
		}
		fn.Base = bv.Number
	}
	if t, ok := m["type"].(string); ok {
		switch t {
		case "interval":
			fn.Step = true
		case "exponential":
		default:
			return nil, fmt.Errorf("style: unsupported function type %q", t)
		}
	}
	for _, rs := range rawStops {
		pair, ok := rs.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("style: stop must be a [zoom, value] pair")
		}
		z, err := parseValue(pair[0], false)
		if err != nil || z.Kind != KindNumber {
			return nil, fmt.Errorf("style: stop zoom must be a number")
		}
		val, err := parseValue(pair[1], color)
		if err != nil {
			return nil, err
		}
		fn.Stops = append(fn.Stops, Stop{Zoom: z.Number, Value: val})
	}
	sort.SliceStable(fn.Stops, func(i, j int) bool { return fn.Stops[i].Zoom < fn.Stops[j].Zoom })
	return fn, nil
}

// Transition is the duration and delay of property changes.
type Transition struct {
	Duration Duration `toml:"duration"`
	Delay    Duration `toml:"delay"`
}

// transitioning is a property value that may still be blending from the
// value it replaced.
type transitioning struct {
	value      Expression
	prior      *transitioning
	begin, end time.Time
}

func newTransitioning(value Expression, prior *transitioning, tr Transition, now time.Time) *transitioning {
	t := &transitioning{value: value}
	if prior == nil || tr.Duration <= 0 && tr.Delay <= 0 {
		return t
	}
	t.prior = prior
	t.begin = now.Add(tr.Delay.Std())
	t.end = t.begin.Add(tr.Duration.Std())
	return t
}

func (t *transitioning) evaluate(zoom float64, now time.Time) Value {
	v := t.value.Evaluate(zoom)
	if t.prior == nil {
		return v
	}
	if !now.Before(t.end) {
		t.prior = nil
		return v
	}
	if now.Before(t.begin) {
		return t.prior.evaluate(zoom, now)
	}
	p := float64(now.Sub(t.begin)) / float64(t.end.Sub(t.begin))
	return Interpolate(t.prior.evaluate(zoom, now), v, easeCubicInOut(p))
}

// active reports whether a transition is still in flight at now.
func (t *transitioning) active(now time.Time) bool {
	return t.prior != nil && now.Before(t.end)
}

func easeCubicInOut(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	t2 := t * t
	t3 := t2 * t
	if t < 0.5 {
		return 4 * t3
	}
	return 4 * (3*(t-t2) + t3 - 0.75)
}
