package compose

import (
	"fmt"
	"log/slog"
	"time"

	Mt "github.com/sirius-geo/ringdeform/types"
)

const (
	MicrometersPerMeter = 1e6

	// DefaultLagSamples delays the deformation by 3 hours at 1-minute cadence
	// before it is compared with RF. Fitted on this ring's data only.
	DefaultLagSamples = 180

	// DefaultHzPerMicrometer is the RF response to a circumference change.
	// A longer ring lowers the frequency, hence the sign.
	DefaultHzPerMicrometer = -1 / 1.04
)

type Options struct {
	LagSamples      int
	HzPerMicrometer float64
}

func DefaultOptions() Options {
	return Options{LagSamples: DefaultLagSamples, HzPerMicrometer: DefaultHzPerMicrometer}
}

// Result holds the aligned series, all of the same length.
type Result struct {
	Times       []time.Time
	RF          []float64 // Hz, rebased
	Deformation []float64 // µm, shifted and re-baselined
	Frequency   []float64 // Hz equivalent of Deformation
	Residual    []float64 // RF − Frequency
}

// Compose is thermal − tidal in micrometers. A nil series stands for a
// disabled effect and counts as zeros.
func Compose(thermal, tidal []float64) ([]float64, error) {
	switch {
	case thermal == nil && tidal == nil:
		return nil, &Mt.InsufficientDataError{Channel: "composition", Message: "both effects are disabled"}
	case thermal == nil:
		thermal = make([]float64, len(tidal))
	case tidal == nil:
		tidal = make([]float64, len(thermal))
	}
	if len(thermal) != len(tidal) {
		return nil, &Mt.InsufficientDataError{Channel: "tidal", Want: len(thermal), Got: len(tidal), Message: "delta series lengths differ"}
	}

	out := make([]float64, len(thermal))
	for i := range out {
		out[i] = (thermal[i] - tidal[i]) * MicrometersPerMeter
	}
	return out, nil
}

// Shift advances the series by lag samples and re-baselines it:
// out[i] = x[i+lag] − x[lag]. The last lag samples have no partner and are dropped.
func Shift(series []float64, lag int) ([]float64, error) {
	if lag < 0 {
		return nil, &Mt.ConfigError{Field: "composition.lag_samples", Value: fmt.Sprint(lag), Message: "must not be negative"}
	}
	if lag >= len(series) {
		return nil, &Mt.InsufficientDataError{Channel: "deformation", Want: lag + 1, Got: len(series), Message: "series shorter than the configured lag"}
	}
	out := make([]float64, len(series)-lag)
	ref := series[lag]
	for i := range out {
		out[i] = series[i+lag] - ref
	}
	return out, nil
}

// ToFrequency converts micrometers to Hz with a linear sensitivity
func ToFrequency(um []float64, hzPerMicrometer float64) []float64 {
	out := make([]float64, len(um))
	for i, v := range um {
		out[i] = v * hzPerMicrometer
	}
	return out
}

// Residual is rf − freq over the length of freq
func Residual(rf, freq []float64) ([]float64, error) {
	if len(rf) < len(freq) {
		return nil, &Mt.InsufficientDataError{Channel: "rf", Want: len(freq), Got: len(rf), Message: "rf series shorter than the deformation"}
	}
	out := make([]float64, len(freq))
	for i := range out {
		out[i] = rf[i] - freq[i]
	}
	return out, nil
}

// Run composes both delta series, aligns them with RF and returns the residual.
// times, thermal and tidal share the deformation time base; rf shares it too.
func Run(times []time.Time, thermal, tidal, rf []float64, opt Options) (*Result, error) {
	if opt.HzPerMicrometer == 0 {
		return nil, &Mt.ConfigError{Field: "composition.hz_per_micrometer", Value: "0", Message: "sensitivity must be non-zero"}
	}
	combined, err := Compose(thermal, tidal)
	if err != nil {
		return nil, err
	}
	if len(combined) != len(times) {
		return nil, &Mt.InsufficientDataError{Channel: "deformation", Want: len(times), Got: len(combined), Message: "delta series does not match the time index"}
	}
	if len(rf) != len(times) {
		return nil, &Mt.InsufficientDataError{Channel: "rf", Want: len(times), Got: len(rf), Message: "rf does not match the deformation time index"}
	}

	shifted, err := Shift(combined, opt.LagSamples)
	if err != nil {
		return nil, err
	}
	freq := ToFrequency(shifted, opt.HzPerMicrometer)
	residual, err := Residual(rf, freq)
	if err != nil {
		return nil, err
	}

	n := len(shifted)
	slog.Info("Composition complete",
		slog.Int("samples", n),
		slog.Int("lag", opt.LagSamples),
		slog.Float64("hzPerMicrometer", opt.HzPerMicrometer))

	return &Result{
		Times:       append([]time.Time(nil), times[:n]...),
		RF:          append([]float64(nil), rf[:n]...),
		Deformation: shifted,
		Frequency:   freq,
		Residual:    residual,
	}, nil
}

// Table lays the result out for export
func (r *Result) Table() (*Mt.Table, error) {
	t, err := Mt.NewTable(r.Times)
	if err != nil {
		return nil, err
	}
	for _, ch := range []struct {
		name   string
		values []float64
	}{
		{"rf_hz", r.RF},
		{"deformation_um", r.Deformation},
		{"deformation_hz", r.Frequency},
		{"residual_hz", r.Residual},
	} {
		if err := t.AddChannel(ch.name, ch.values); err != nil {
			return nil, err
		}
	}
	return t, nil
}
