package tides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	Mg "github.com/sirius-geo/ringdeform/geometry"
	Mt "github.com/sirius-geo/ringdeform/types"
)

// Resolution of the generated series, one sample per minute
const Resolution = time.Minute

// Site ties a polygon point to the coordinate the tide is computed at
type Site struct {
	Point     string
	Latitude  float64
	Longitude float64
}

type Provider struct {
	geo          Geodesy
	sites        []Site
	step         time.Duration
	maxRetries   uint64
	initInterval time.Duration
}

type Option func(*Provider)

// WithRetry bounds how often a failing geodesy call is repeated
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(p *Provider) {
		p.maxRetries = maxRetries
		p.initInterval = initial
	}
}

func NewProvider(geo Geodesy, sites []Site, opts ...Option) (*Provider, error) {
	if geo == nil {
		geo = NewSolidEarth()
	}
	if len(sites) == 0 {
		return nil, &Mt.ConfigError{Field: "tides.sites", Message: "no coordinates configured"}
	}
	seen := make(map[string]bool, len(sites))
	for _, s := range sites {
		if seen[s.Point] {
			return nil, &Mt.ConfigError{Field: "tides.sites", Value: s.Point, Message: "duplicate point"}
		}
		seen[s.Point] = true
	}
	p := &Provider{
		geo:          geo,
		sites:        append([]Site(nil), sites...),
		step:         Resolution,
		maxRetries:   2,
		initInterval: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Displacement generates every UTC day touched by w for every site, joins the
// days, re-references each point to its first generated sample and clips to w.
func (p *Provider) Displacement(ctx context.Context, w Mt.Window) (*Mg.TidalDisplacement, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	w = w.UTC()
	days := w.Days()
	perDay := int(24 * time.Hour / p.step)

	index := make([]time.Time, 0, len(days)*perDay)
	for _, day := range days {
		for i := 0; i < perDay; i++ {
			index = append(index, day.Add(time.Duration(i)*p.step))
		}
	}
	lo := sort.Search(len(index), func(i int) bool { return !index[i].Before(w.Start) })
	hi := sort.Search(len(index), func(i int) bool { return index[i].After(w.End) })
	if lo >= hi {
		return nil, &Mt.InsufficientDataError{Channel: "tides", Message: "window selects no tide samples"}
	}

	out := &Mg.TidalDisplacement{
		Times:   append([]time.Time(nil), index[lo:hi]...),
		Offsets: make(map[string][]Mt.NEU, len(p.sites)),
	}

	for _, site := range p.sites {
		series := make([]Mt.NEU, 0, len(index))
		for _, day := range days {
			neu, err := p.solid(ctx, site, day)
			if err != nil {
				return nil, err
			}
			if len(neu) != perDay {
				return nil, &Mt.InsufficientDataError{Channel: site.Point, Want: perDay, Got: len(neu), Message: "geodesy returned a partial day"}
			}
			series = append(series, neu...)
		}

		ref := series[0]
		clipped := make([]Mt.NEU, hi-lo)
		for i := range clipped {
			s := series[lo+i]
			clipped[i] = Mt.NEU{North: s.North - ref.North, East: s.East - ref.East, Up: s.Up - ref.Up}
		}
		out.Offsets[site.Point] = clipped
	}

	slog.Info("Tides generated",
		slog.Int("sites", len(p.sites)),
		slog.Int("days", len(days)),
		slog.Int("samples", len(out.Times)))
	return out, nil
}

func (p *Provider) solid(ctx context.Context, site Site, day time.Time) ([]Mt.NEU, error) {
	var neu []Mt.NEU
	attempts := 0
	op := func() error {
		attempts++
		var err error
		neu, err = p.geo.Solid(ctx, day, site.Latitude, site.Longitude, p.step)
		var ce *Mt.ConfigError
		if errors.As(err, &ce) {
			return backoff.Permanent(err)
		}
		return err
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if Mt.IsConfig(err) {
			return nil, err
		}
		return nil, &Mt.UpstreamError{
			Op:       "geodesy",
			Target:   fmt.Sprintf("%s %s (%g, %g)", site.Point, day.Format(time.DateOnly), site.Latitude, site.Longitude),
			Attempts: attempts,
			Err:      err,
		}
	}
	return neu, nil
}

// Table flattens a tidal displacement into North/East/Up channels per point,
// named "<point>:North" and so on, for export.
func Table(d *Mg.TidalDisplacement) (*Mt.Table, error) {
	t, err := Mt.NewTable(d.Times)
	if err != nil {
		return nil, err
	}
	points := make([]string, 0, len(d.Offsets))
	for name := range d.Offsets {
		points = append(points, name)
	}
	sort.Strings(points)

	for _, name := range points {
		neu := d.Offsets[name]
		n, e, u := make([]float64, len(neu)), make([]float64, len(neu)), make([]float64, len(neu))
		for i, v := range neu {
			n[i], e[i], u[i] = v.North, v.East, v.Up
		}
		for _, ch := range []struct {
			suffix string
			values []float64
		}{{"North", n}, {"East", e}, {"Up", u}} {
			if err := t.AddChannel(name+":"+ch.suffix, ch.values); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}
