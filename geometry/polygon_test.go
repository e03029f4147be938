package geometry_test

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	Mg "github.com/sirius-geo/ringdeform/geometry"
	Mt "github.com/sirius-geo/ringdeform/types"
)

const (
	realPerimeter = 518.4
	tolerance     = 1e-9
)

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("P%d", i)
	}
	return out
}

func TestNewPolygon(t *testing.T) {
	t.Run("Spreads points evenly when no directions are given", func(t *testing.T) {
		for _, n := range []int{3, 4, 16, 40} {
			p, err := Mg.NewPolygon(names(n), nil, realPerimeter)
			assertError(t, err, nil)
			pts := p.Points()
			assertFloat(t, pts[0].Direction, 0, tolerance)
			for i := 0; i+1 < n; i++ {
				assertFloat(t, pts[i+1].Direction-pts[i].Direction, 360/float64(n), tolerance)
			}
		}
	})

	t.Run("Places every point on the nominal circle", func(t *testing.T) {
		dirs := []float64{10.27, 28.26, 43.68, 64.23, 82.22, 118.26, 133.68, 154.23}
		p, err := Mg.NewPolygon(names(len(dirs)), dirs, realPerimeter)
		assertError(t, err, nil)
		r := realPerimeter / (2 * math.Pi)
		assertFloat(t, p.Radius(), r, tolerance)
		for _, pt := range p.Points() {
			assertFloat(t, pt.Initial.Norm2D(), r, tolerance)
			assertFloat(t, pt.Initial.Z, 0, 0)
		}
	})

	t.Run("Normalizes directions into one turn", func(t *testing.T) {
		p, err := Mg.NewPolygon([]string{"a", "b", "c"}, []float64{-90, 360, 450}, realPerimeter)
		assertError(t, err, nil)
		pts := p.Points()
		assertFloat(t, pts[0].Direction, 270, tolerance)
		assertFloat(t, pts[1].Direction, 0, tolerance)
		assertFloat(t, pts[2].Direction, 90, tolerance)
	})

	t.Run("Keeps input order for adjacency", func(t *testing.T) {
		// a bow-tie: out of angular order on purpose
		p, err := Mg.NewPolygon([]string{"a", "b", "c", "d"}, []float64{0, 180, 90, 270}, 400)
		assertError(t, err, nil)
		r := 400 / (2 * math.Pi)
		want := 2*(2*r) + 2*(r*math.Sqrt2)
		assertFloat(t, p.InitialPerimeter(), want, 1e-9)
	})

	cases := []struct {
		name  string
		pts   []string
		dirs  []float64
		perim float64
	}{
		{"Rejects an empty point list", nil, nil, realPerimeter},
		{"Rejects a degenerate polygon", []string{"a", "b"}, nil, realPerimeter},
		{"Rejects duplicate names", []string{"a", "b", "a"}, nil, realPerimeter},
		{"Rejects mismatched directions", []string{"a", "b", "c"}, []float64{0, 120}, realPerimeter},
		{"Rejects a non-positive perimeter", []string{"a", "b", "c"}, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Mg.NewPolygon(tc.pts, tc.dirs, tc.perim)
			if !Mt.IsConfig(err) {
				t.Errorf("got %v, want a config error", err)
			}
		})
	}
}

func TestPolygon_Perimeter(t *testing.T) {
	t.Run("Matches the regular polygon closed form", func(t *testing.T) {
		for _, n := range []int{16, 40} {
			p, _ := Mg.NewPolygon(names(n), nil, realPerimeter)
			r := realPerimeter / (2 * math.Pi)
			want := 2 * float64(n) * r * math.Sin(math.Pi/float64(n))

			got, err := p.Perimeter(p.InitialPositions(), Mg.Mode3D)
			assertError(t, err, nil)
			assertFloat(t, got, want, tolerance)
			assertFloat(t, p.InitialPerimeter(), want, tolerance)
		}
	})

	t.Run("Ignores Z in 2D mode", func(t *testing.T) {
		p, _ := Mg.NewPolygon(names(4), nil, 400)
		pos := p.InitialPositions()
		lifted := pos["P0"]
		lifted.Z = 3
		pos["P0"] = lifted

		flat, _ := p.Perimeter(pos, Mg.Mode2D)
		full, _ := p.Perimeter(pos, Mg.Mode3D)
		assertFloat(t, flat, p.InitialPerimeter(), tolerance)
		if full <= flat {
			t.Errorf("3D perimeter %g should exceed 2D %g", full, flat)
		}
	})

	t.Run("Fails when a point has no position", func(t *testing.T) {
		p, _ := Mg.NewPolygon(names(4), nil, 400)
		pos := p.InitialPositions()
		delete(pos, "P2")
		_, err := p.Perimeter(pos, Mg.Mode3D)
		var ie *Mt.InsufficientDataError
		if !errors.As(err, &ie) || ie.Channel != "P2" {
			t.Errorf("got %v, want insufficient data naming P2", err)
		}
	})
}

func TestQuadrantDirections(t *testing.T) {
	spacing := []float64{14.8, 11.1, 14.8, 11.1, 11.1, 14.8, 14.8, 11.1, 14.8, 11.1}
	dirs := Mg.QuadrantDirections(spacing, realPerimeter)

	assertInt(t, len(dirs), 40)
	assertFloat(t, dirs[0], 0, tolerance)
	assertFloat(t, dirs[1], 14.8/realPerimeter*360, tolerance)
	assertFloat(t, dirs[10], 90, tolerance)
	assertFloat(t, dirs[20], 180, tolerance)
	assertFloat(t, dirs[30], 270, tolerance)

	_, err := Mg.NewPolygon(names(40), dirs, realPerimeter)
	assertError(t, err, nil)
}

var t0 = time.Date(2021, 11, 13, 3, 0, 0, 0, time.UTC)

func minutes(n int) []time.Time {
	idx := make([]time.Time, n)
	for i := range idx {
		idx[i] = t0.Add(time.Duration(i) * time.Minute)
	}
	return idx
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

func assertFloat(t testing.TB, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("got %.12g, want %.12g (tolerance %g)", got, want, tol)
	}
}
