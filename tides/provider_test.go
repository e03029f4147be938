package tides_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	Mtd "github.com/sirius-geo/ringdeform/tides"
	Mt "github.com/sirius-geo/ringdeform/types"
)

// rampGeodesy returns Up = day-of-month*10000 + minute-of-day, North = -Up, East = 1
type rampGeodesy struct {
	mu    sync.Mutex
	calls int
	fail  int
	err   error
}

func (g *rampGeodesy) Solid(ctx context.Context, day time.Time, lat, lon float64, step time.Duration) ([]Mt.NEU, error) {
	g.mu.Lock()
	g.calls++
	calls := g.calls
	g.mu.Unlock()
	if calls <= g.fail {
		return nil, g.err
	}
	n := int(24 * time.Hour / step)
	out := make([]Mt.NEU, n)
	for i := range out {
		up := float64(day.Day()*10000 + i)
		out[i] = Mt.NEU{North: -up, East: 1, Up: up}
	}
	return out, nil
}

var sites = []Mtd.Site{
	{Point: "Q1P2", Latitude: -22.807830425529488, Longitude: -47.051824890303436},
	{Point: "Q3P2", Latitude: -22.807822432874918, Longitude: -47.05320628229365},
}

func TestProvider_Displacement(t *testing.T) {
	t.Run("Joins days, rebases to the first sample and clips inclusively", func(t *testing.T) {
		p, err := Mtd.NewProvider(&rampGeodesy{}, sites)
		assertError(t, err, nil)

		w := Mt.Window{
			Start: time.Date(2021, 11, 13, 23, 58, 0, 0, time.UTC),
			End:   time.Date(2021, 11, 14, 0, 2, 0, 0, time.UTC),
		}
		d, err := p.Displacement(context.Background(), w)
		assertError(t, err, nil)

		assertInt(t, len(d.Times), 5)
		if !d.Times[0].Equal(w.Start) || !d.Times[4].Equal(w.End) {
			t.Errorf("got times %s..%s, want %s..%s", d.Times[0], d.Times[4], w.Start, w.End)
		}

		q := d.Offsets["Q1P2"]
		assertInt(t, len(q), 5)
		// 13th at minute 1438, relative to 13th minute 0
		assertFloat(t, q[0].Up, 1438)
		assertFloat(t, q[0].North, -1438)
		assertFloat(t, q[0].East, 0)
		// 14th at minute 0
		assertFloat(t, q[2].Up, 10000)
	})

	t.Run("Accepts a window given in local time", func(t *testing.T) {
		loc := time.FixedZone("BRT", -3*3600)
		p, _ := Mtd.NewProvider(&rampGeodesy{}, sites)
		w := Mt.Window{
			Start: time.Date(2021, 11, 13, 0, 0, 0, 0, loc),
			End:   time.Date(2021, 11, 13, 1, 0, 0, 0, loc),
		}
		d, err := p.Displacement(context.Background(), w)
		assertError(t, err, nil)
		assertInt(t, len(d.Times), 61)
		if d.Times[0].Hour() != 3 {
			t.Errorf("got first hour %d UTC, want 3", d.Times[0].Hour())
		}
	})

	t.Run("Retries a failing geodesy call", func(t *testing.T) {
		g := &rampGeodesy{fail: 2, err: errors.New("model unavailable")}
		p, _ := Mtd.NewProvider(g, sites[:1], Mtd.WithRetry(3, time.Millisecond))
		w := Mt.Window{Start: time.Date(2021, 11, 13, 1, 0, 0, 0, time.UTC), End: time.Date(2021, 11, 13, 2, 0, 0, 0, time.UTC)}
		_, err := p.Displacement(context.Background(), w)
		assertError(t, err, nil)
		assertInt(t, g.calls, 3)
	})

	t.Run("Surfaces an exhausted geodesy call as upstream", func(t *testing.T) {
		cause := errors.New("model unavailable")
		g := &rampGeodesy{fail: 100, err: cause}
		p, _ := Mtd.NewProvider(g, sites[:1], Mtd.WithRetry(1, time.Millisecond))
		w := Mt.Window{Start: time.Date(2021, 11, 13, 1, 0, 0, 0, time.UTC), End: time.Date(2021, 11, 13, 2, 0, 0, 0, time.UTC)}
		_, err := p.Displacement(context.Background(), w)

		var ue *Mt.UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("got %v, want an upstream error", err)
		}
		assertInt(t, ue.Attempts, 2)
		assertError(t, err, cause)
	})

	t.Run("Rejects an inverted window", func(t *testing.T) {
		p, _ := Mtd.NewProvider(&rampGeodesy{}, sites)
		w := Mt.Window{Start: time.Date(2021, 11, 13, 2, 0, 0, 0, time.UTC), End: time.Date(2021, 11, 13, 1, 0, 0, 0, time.UTC)}
		_, err := p.Displacement(context.Background(), w)
		if !Mt.IsConfig(err) {
			t.Errorf("got %v, want a config error", err)
		}
	})
}

func TestNewProvider(t *testing.T) {
	t.Run("Needs at least one site", func(t *testing.T) {
		_, err := Mtd.NewProvider(nil, nil)
		if !Mt.IsConfig(err) {
			t.Errorf("got %v, want a config error", err)
		}
	})

	t.Run("Rejects duplicate points", func(t *testing.T) {
		_, err := Mtd.NewProvider(nil, []Mtd.Site{sites[0], sites[0]})
		if !Mt.IsConfig(err) {
			t.Errorf("got %v, want a config error", err)
		}
	})
}

func TestTable(t *testing.T) {
	p, _ := Mtd.NewProvider(&rampGeodesy{}, sites)
	w := Mt.Window{Start: time.Date(2021, 11, 13, 1, 0, 0, 0, time.UTC), End: time.Date(2021, 11, 13, 1, 9, 0, 0, time.UTC)}
	d, _ := p.Displacement(context.Background(), w)

	tb, err := Mtd.Table(d)
	assertError(t, err, nil)
	assertInt(t, tb.Len(), 10)
	assertInt(t, len(tb.Names()), 6)
	up, ok := tb.Channel("Q3P2:Up")
	if !ok {
		t.Fatal("Q3P2:Up missing")
	}
	assertFloat(t, up[0], 60)
}

func TestSolidEarth(t *testing.T) {
	geo := Mtd.NewSolidEarth()
	day := time.Date(2021, 11, 13, 0, 0, 0, 0, time.UTC)

	neu, err := geo.Solid(context.Background(), day, sites[0].Latitude, sites[0].Longitude, time.Minute)
	assertError(t, err, nil)

	t.Run("Returns one sample per minute", func(t *testing.T) {
		assertInt(t, len(neu), 1440)
	})

	t.Run("Stays within physical bounds", func(t *testing.T) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range neu {
			lo, hi = math.Min(lo, v.Up), math.Max(hi, v.Up)
			if math.Abs(v.Up) > 0.6 || math.Abs(v.North) > 0.3 || math.Abs(v.East) > 0.3 {
				t.Fatalf("implausible displacement %+v", v)
			}
		}
		if hi-lo < 0.05 {
			t.Errorf("got daily Up range %g m, want a visible tide", hi-lo)
		}
	})

	t.Run("Is deterministic", func(t *testing.T) {
		again, _ := geo.Solid(context.Background(), day, sites[0].Latitude, sites[0].Longitude, time.Minute)
		for i := range neu {
			if neu[i] != again[i] {
				t.Fatalf("sample %d differs between calls", i)
			}
		}
	})

	t.Run("Rejects a step that does not divide a day", func(t *testing.T) {
		_, err := geo.Solid(context.Background(), day, 0, 0, 7*time.Minute)
		if !Mt.IsConfig(err) {
			t.Errorf("got %v, want a config error", err)
		}
	})
}

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %v, want %v", got, want)
	}
}

func assertInt(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func assertFloat(t testing.TB, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %g, want %g", got, want)
	}
}
