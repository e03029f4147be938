package compose_test

import (
	"errors"
	"math"
	"testing"
	"time"

	Mc "github.com/sirius-geo/ringdeform/compose"
	Mt "github.com/sirius-geo/ringdeform/types"
)

var t0 = time.Date(2021, 11, 13, 3, 0, 0, 0, time.UTC)

func minutes(n int) []time.Time {
	idx := make([]time.Time, n)
	for i := range idx {
		idx[i] = t0.Add(time.Duration(i) * time.Minute)
	}
	return idx
}

func TestCompose(t *testing.T) {
	t.Run("Subtracts tidal from thermal in micrometers", func(t *testing.T) {
		got, err := Mc.Compose([]float64{0, 2e-6, 5e-6}, []float64{0, 1e-6, -1e-6})
		assertError(t, err, nil)
		assertFloats(t, got, []float64{0, 1, 6})
	})

	t.Run("Treats a disabled effect as zeros", func(t *testing.T) {
		got, err := Mc.Compose([]float64{1e-6, 3e-6}, nil)
		assertError(t, err, nil)
		assertFloats(t, got, []float64{1, 3})

		got, err = Mc.Compose(nil, []float64{1e-6})
		assertError(t, err, nil)
		assertFloats(t, got, []float64{-1})
	})

	t.Run("Refuses mismatched lengths", func(t *testing.T) {
		_, err := Mc.Compose([]float64{1, 2}, []float64{1})
		assertInsufficient(t, err)
	})

	t.Run("Refuses two disabled effects", func(t *testing.T) {
		_, err := Mc.Compose(nil, nil)
		assertInsufficient(t, err)
	})
}

func TestShift(t *testing.T) {
	t.Run("Advances and re-baselines", func(t *testing.T) {
		got, err := Mc.Shift([]float64{5, 6, 8, 11, 15}, 2)
		assertError(t, err, nil)
		assertFloats(t, got, []float64{0, 3, 7})
	})

	t.Run("Zero lag only re-baselines", func(t *testing.T) {
		got, _ := Mc.Shift([]float64{2, 3}, 0)
		assertFloats(t, got, []float64{0, 1})
	})

	t.Run("Lag as long as the series is insufficient data", func(t *testing.T) {
		_, err := Mc.Shift([]float64{1, 2, 3}, 3)
		assertInsufficient(t, err)
	})

	t.Run("Negative lag is a configuration error", func(t *testing.T) {
		_, err := Mc.Shift([]float64{1, 2, 3}, -1)
		if !Mt.IsConfig(err) {
			t.Errorf("got %v, want a config error", err)
		}
	})
}

func TestRun(t *testing.T) {
	t.Run("With zero tides the deformation is thermal scaled and shifted", func(t *testing.T) {
		thermal := []float64{0, 1e-6, 3e-6, 6e-6, 10e-6, 15e-6}
		rf := []float64{0, 0, 0, 0, 0, 0}
		opt := Mc.Options{LagSamples: 2, HzPerMicrometer: Mc.DefaultHzPerMicrometer}

		res, err := Mc.Run(minutes(6), thermal, make([]float64, 6), rf, opt)
		assertError(t, err, nil)

		um := []float64{0, 1, 3, 6, 10, 15}
		want, _ := Mc.Shift(um, 2)
		assertFloats(t, res.Deformation, want)
		assertInt(t, len(res.Times), 4)
		assertInt(t, len(res.Residual), 4)
	})

	t.Run("Residual removes the converted deformation from RF", func(t *testing.T) {
		thermal := []float64{0, 1.04e-6, 2.08e-6}
		rf := []float64{0, 3, 5}
		res, err := Mc.Run(minutes(3), thermal, nil, rf, Mc.Options{LagSamples: 0, HzPerMicrometer: Mc.DefaultHzPerMicrometer})
		assertError(t, err, nil)
		assertFloats(t, res.Frequency, []float64{0, -1, -2})
		assertFloats(t, res.Residual, []float64{0, 4, 7})
	})

	t.Run("RF with a different length is insufficient data", func(t *testing.T) {
		_, err := Mc.Run(minutes(3), []float64{0, 0, 0}, nil, []float64{0, 0}, Mc.DefaultOptions())
		assertInsufficient(t, err)
	})

	t.Run("Exports every series", func(t *testing.T) {
		res, _ := Mc.Run(minutes(3), []float64{0, 0, 0}, nil, []float64{0, 1, 2}, Mc.Options{HzPerMicrometer: 1})
		tb, err := res.Table()
		assertError(t, err, nil)
		assertInt(t, len(tb.Names()), 4)
		assertInt(t, tb.Len(), 3)
	})
}

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %v, want %v", got, want)
	}
}

func assertInsufficient(t testing.TB, err error) {
	t.Helper()
	if !Mt.IsInsufficientData(err) {
		t.Errorf("got %v, want insufficient data", err)
	}
}

func assertInt(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func assertFloats(t testing.TB, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("index %d: got %g, want %g", i, got[i], want[i])
		}
	}
}
