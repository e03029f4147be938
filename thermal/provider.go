package thermal

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	Mg "github.com/sirius-geo/ringdeform/geometry"
	Mt "github.com/sirius-geo/ringdeform/types"
)

// ExpansionCoefficient of the concrete slab, 1/K
const ExpansionCoefficient = 12e-6

// Source is anything that yields a Signal Table for named channels,
// the archiver client or a local spreadsheet.
type Source interface {
	Fetch(ctx context.Context, channels []string, w Mt.Window) (*Mt.Table, error)
}

type Provider struct {
	src      Source
	grouping Grouping
	radius   float64
	alpha    float64
}

func NewProvider(src Source, g Grouping, nominalPerimeter float64) (*Provider, error) {
	if src == nil {
		return nil, &Mt.ConfigError{Field: "thermal.source", Message: "no data source"}
	}
	if len(g) == 0 {
		return nil, &Mt.ConfigError{Field: "thermal.strategy", Message: "grouping selects no sensors"}
	}
	if !(nominalPerimeter > 0) {
		return nil, &Mt.ConfigError{Field: "nominal_perimeter", Value: fmt.Sprint(nominalPerimeter), Message: "must be a positive length"}
	}
	return &Provider{
		src:      src,
		grouping: g.clone(),
		radius:   nominalPerimeter / (2 * math.Pi),
		alpha:    ExpansionCoefficient,
	}, nil
}

// Temperatures fetches every sensor of the grouping and returns one channel per
// point: the mean temperature change since the first row.
func (p *Provider) Temperatures(ctx context.Context, w Mt.Window) (*Mt.Table, error) {
	raw, err := p.src.Fetch(ctx, p.grouping.Channels(), w)
	if err != nil {
		return nil, fmt.Errorf("thermal fetch: %w", err)
	}
	return PointDeltas(raw.Rebase(), p.grouping)
}

// Displacement is the radial offset per point, α·R·ΔT
func (p *Provider) Displacement(ctx context.Context, w Mt.Window) (*Mg.ThermalDisplacement, error) {
	deltas, err := p.Temperatures(ctx, w)
	if err != nil {
		return nil, err
	}
	return Radial(deltas, p.alpha*p.radius), nil
}

// PointDeltas averages each point's channels. Points whose sensors are all
// absent from t are left out, and the geometry holds them at rest.
func PointDeltas(t *Mt.Table, g Grouping) (*Mt.Table, error) {
	out, err := Mt.NewTable(t.Index())
	if err != nil {
		return nil, err
	}
	var dropped []string
	for _, point := range g.Points() {
		mean, n := t.MeanOf(g[point])
		if n == 0 {
			dropped = append(dropped, point)
			continue
		}
		if err := out.AddChannel(point, mean); err != nil {
			return nil, err
		}
	}
	if len(dropped) > 0 {
		slog.Warn("Thermal points without any sensor data", slog.Any("points", dropped))
	}
	if len(out.Names()) == 0 {
		return nil, &Mt.InsufficientDataError{Channel: "thermal", Message: "no grouped sensor present in the data"}
	}
	return out, nil
}

// Radial scales every point channel by k (α·R) into meters
func Radial(deltas *Mt.Table, k float64) *Mg.ThermalDisplacement {
	d := &Mg.ThermalDisplacement{
		Times:  deltas.Index(),
		Radial: make(map[string][]float64, len(deltas.Names())),
	}
	for _, point := range deltas.Names() {
		v, _ := deltas.Channel(point)
		for i := range v {
			v[i] *= k
		}
		d.Radial[point] = v
	}
	return d
}
