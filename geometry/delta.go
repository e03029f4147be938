package geometry

import (
	"log/slog"
	"math"
	"sort"
	"time"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// DeltaResult is the Perimeter-Delta Series for one effect:
// one value per timestamp, current perimeter minus the undisplaced one.
type DeltaResult struct {
	Effect    EffectType
	Times     []time.Time
	Delta     []float64
	Reference float64

	// Points with no displacement channel. They stay at their initial position,
	// which counts as ZeroFilled entries (points × timestamps).
	Missing    []string
	ZeroFilled int

	// Channels that name no polygon point
	Unused []string
}

// DeltaSeries displaces every point at every timestamp and records the
// perimeter change. The geometry is recomputed from the initial positions
// at each step, nothing accumulates between timestamps.
func (p *Polygon) DeltaSeries(d Displacement) (*DeltaResult, error) {
	if d == nil {
		return nil, &Mt.ConfigError{Field: "displacement", Message: "no displacement table"}
	}
	times := d.Index()
	if len(times) == 0 {
		return nil, &Mt.InsufficientDataError{Channel: d.Effect().String(), Message: "displacement table has no timestamps"}
	}

	var apply func(pos []Mt.Vec3, t int)
	var keys []string

	switch v := d.(type) {
	case *ThermalDisplacement:
		fn, k, err := p.thermalStep(v.Radial, len(times))
		if err != nil {
			return nil, err
		}
		apply, keys = fn, k
	case ThermalDisplacement:
		fn, k, err := p.thermalStep(v.Radial, len(times))
		if err != nil {
			return nil, err
		}
		apply, keys = fn, k
	case *TidalDisplacement:
		fn, k, err := p.tidalStep(v.Offsets, len(times))
		if err != nil {
			return nil, err
		}
		apply, keys = fn, k
	case TidalDisplacement:
		fn, k, err := p.tidalStep(v.Offsets, len(times))
		if err != nil {
			return nil, err
		}
		apply, keys = fn, k
	default:
		return nil, &Mt.ConfigError{Field: "effect", Value: d.Effect().String(), Message: "unsupported displacement"}
	}

	res := &DeltaResult{
		Effect:    d.Effect(),
		Times:     append([]time.Time(nil), times...),
		Delta:     make([]float64, len(times)),
		Reference: p.reference,
	}
	res.Missing, res.Unused = p.coverage(keys)
	res.ZeroFilled = len(res.Missing) * len(times)

	if len(res.Missing) > 0 {
		slog.Warn("Polygon points without displacement held at initial position",
			slog.String("effect", res.Effect.String()),
			slog.Int("points", len(res.Missing)),
			slog.Int("zeroFilled", res.ZeroFilled),
			slog.Any("missing", res.Missing))
	}
	if len(res.Unused) > 0 {
		slog.Debug("Displacement channels not on the polygon",
			slog.String("effect", res.Effect.String()),
			slog.Any("channels", res.Unused))
	}

	base := p.initialSlice()
	pos := make([]Mt.Vec3, len(base))
	step := len(times) / 10
	for t := range times {
		copy(pos, base)
		apply(pos, t)
		res.Delta[t] = p.perimeterOf(pos, Mode3D) - p.reference

		if step > 0 && (t+1)%step == 0 {
			slog.Debug("Perimeter progress",
				slog.String("effect", res.Effect.String()),
				slog.Int("done", t+1),
				slog.Int("total", len(times)))
		}
	}

	return res, nil
}

func (p *Polygon) thermalStep(radial map[string][]float64, n int) (func([]Mt.Vec3, int), []string, error) {
	type term struct {
		i      int
		cx, cy float64
		values []float64
	}
	var terms []term
	keys := make([]string, 0, len(radial))
	for name, values := range radial {
		keys = append(keys, name)
		if len(values) != n {
			return nil, nil, &Mt.InsufficientDataError{Channel: name, Want: n, Got: len(values), Message: "thermal displacement length does not match the time index"}
		}
		i, ok := p.index[name]
		if !ok {
			continue
		}
		rad := p.points[i].Direction * math.Pi / 180
		terms = append(terms, term{i: i, cx: math.Cos(rad), cy: math.Sin(rad), values: values})
	}

	return func(pos []Mt.Vec3, t int) {
		for _, tm := range terms {
			d := tm.values[t]
			pos[tm.i].X += tm.cx * d
			pos[tm.i].Y += tm.cy * d
		}
	}, keys, nil
}

func (p *Polygon) tidalStep(offsets map[string][]Mt.NEU, n int) (func([]Mt.Vec3, int), []string, error) {
	type term struct {
		i      int
		values []Mt.NEU
	}
	var terms []term
	keys := make([]string, 0, len(offsets))
	for name, values := range offsets {
		keys = append(keys, name)
		if len(values) != n {
			return nil, nil, &Mt.InsufficientDataError{Channel: name, Want: n, Got: len(values), Message: "tidal displacement length does not match the time index"}
		}
		i, ok := p.index[name]
		if !ok {
			continue
		}
		terms = append(terms, term{i: i, values: values})
	}

	return func(pos []Mt.Vec3, t int) {
		for _, tm := range terms {
			o := tm.values[t]
			pos[tm.i].X += o.East
			pos[tm.i].Y += o.North
			pos[tm.i].Z += o.Up
		}
	}, keys, nil
}

// coverage splits the table keys against the polygon: points with no key,
// and keys with no point. Both come back sorted.
func (p *Polygon) coverage(keys []string) (missing, unused []string) {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
		if _, ok := p.index[k]; !ok {
			unused = append(unused, k)
		}
	}
	for _, pt := range p.points {
		if !seen[pt.Name] {
			missing = append(missing, pt.Name)
		}
	}
	sort.Strings(missing)
	sort.Strings(unused)
	return missing, unused
}
