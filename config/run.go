package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	Mc "github.com/sirius-geo/ringdeform/compose"
	Mg "github.com/sirius-geo/ringdeform/geometry"
	Mth "github.com/sirius-geo/ringdeform/thermal"
	Mt "github.com/sirius-geo/ringdeform/types"
)

const (
	SourceArchiver = "archiver"
	SourceLocal    = "local"

	DefaultLocation    = "America/Sao_Paulo"
	DefaultTimeout     = 10 * time.Second
	DefaultMeanMinutes = 1
	DefaultMaxRetries  = 4

	// sensors tagged with level A and type N in the base grouping
	DefaultLevel      = "A"
	DefaultSensorType = "N"
)

// Run is one deformation run as read from its JSON file
type Run struct {
	Window           WindowConfig      `json:"window"`
	Effects          []string          `json:"effects"`
	Thermal          ThermalConfig     `json:"thermal"`
	RF               RFConfig          `json:"rf"`
	Archiver         ArchiverConfig    `json:"archiver"`
	Composition      CompositionConfig `json:"composition"`
	Export           ExportConfig      `json:"export"`
	NominalPerimeter float64           `json:"nominal_perimeter"`
}

// WindowConfig holds local wall-clock times in Location
type WindowConfig struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location"`
}

type ThermalConfig struct {
	Source     string `json:"source"`
	Strategy   string `json:"strategy"`
	Level      string `json:"level"`
	SensorType string `json:"sensor_type"`
	FilePath   string `json:"filepath"`
}

type RFConfig struct {
	Source   string `json:"source"`
	Channel  string `json:"channel"`
	FilePath string `json:"filepath"`
}

type ArchiverConfig struct {
	URL           string  `json:"url"`
	MeanMinutes   *int    `json:"mean_minutes"`
	Timeout       string  `json:"timeout"`
	MaxRetries    *int    `json:"max_retries"`
	RatePerSecond float64 `json:"rate_per_second"`
	CachePath     string  `json:"cache_path"`
}

type CompositionConfig struct {
	LagSamples      *int    `json:"lag_samples"`
	HzPerMicrometer float64 `json:"hz_per_micrometer"`
}

type ExportConfig struct {
	Path string `json:"path"`
}

var windowLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadConfigFileName pulls a run config off local disk.
// The file is checked before decoding.
func LoadConfigFileName(filename string) (*Run, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &Mt.ConfigError{Field: "config", Value: filename, Message: err.Error()}
	}
	defer file.Close()

	if err := validateLoad(file); err != nil {
		slog.Error("Validation failed", slog.String("file", filename), slog.Any("error", err))
		return nil, err
	}

	return LoadConfig(file)
}

func validateLoad(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		slog.Error("could not stat file")
		return err
	}
	if info.Size() == 0 {
		return &Mt.ConfigError{Field: "config", Value: file.Name(), Message: "file is empty"}
	}
	return nil
}

// LoadConfig decodes a run and fills in defaults. Unknown fields are rejected.
func LoadConfig(r io.Reader) (*Run, error) {
	var cfg Run
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		slog.Error("could not decode config", slog.Any("error", err))
		return nil, &Mt.ConfigError{Field: "config", Message: err.Error()}
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Run) setDefaults() {
	if len(r.Effects) == 0 {
		r.Effects = []string{Mg.Thermal.String(), Mg.Tidal.String()}
	}
	if r.Window.Location == "" {
		r.Window.Location = DefaultLocation
	}
	if r.Thermal.Source == "" {
		r.Thermal.Source = SourceArchiver
	}
	if r.Thermal.Strategy == "" && r.Thermal.Level == "" && r.Thermal.SensorType == "" {
		r.Thermal.Strategy = Mth.Custom
		r.Thermal.Level = DefaultLevel
		r.Thermal.SensorType = DefaultSensorType
	}
	if r.RF.Source == "" {
		r.RF.Source = SourceArchiver
	}
	if r.Archiver.MeanMinutes == nil {
		m := DefaultMeanMinutes
		r.Archiver.MeanMinutes = &m
	}
	if r.Archiver.MaxRetries == nil {
		n := DefaultMaxRetries
		r.Archiver.MaxRetries = &n
	}
	if r.Archiver.Timeout == "" {
		r.Archiver.Timeout = DefaultTimeout.String()
	}
	if r.Composition.LagSamples == nil {
		lag := Mc.DefaultLagSamples
		r.Composition.LagSamples = &lag
	}
	if r.Composition.HzPerMicrometer == 0 {
		r.Composition.HzPerMicrometer = Mc.DefaultHzPerMicrometer
	}
}

// Validate checks every field a run depends on, reporting the first problem
func (r *Run) Validate() error {
	if _, err := r.TimeWindow(); err != nil {
		return err
	}
	if _, err := r.EnabledEffects(); err != nil {
		return err
	}
	if err := validSource("thermal", r.Thermal.Source, r.Thermal.FilePath); err != nil {
		return err
	}
	if err := validSource("rf", r.RF.Source, r.RF.FilePath); err != nil {
		return err
	}
	if _, err := r.ArchiverTimeout(); err != nil {
		return err
	}
	if m := r.MeanMinutes(); m < 0 {
		return &Mt.ConfigError{Field: "archiver.mean_minutes", Value: fmt.Sprint(m), Message: "must not be negative"}
	}
	if n := r.MaxRetries(); n < 0 {
		return &Mt.ConfigError{Field: "archiver.max_retries", Value: fmt.Sprint(n), Message: "must not be negative"}
	}
	if lag := r.Lag(); lag < 0 {
		return &Mt.ConfigError{Field: "composition.lag_samples", Value: fmt.Sprint(lag), Message: "must not be negative"}
	}
	if r.NominalPerimeter < 0 {
		return &Mt.ConfigError{Field: "nominal_perimeter", Value: fmt.Sprint(r.NominalPerimeter), Message: "must be positive"}
	}
	return nil
}

func validSource(field, source, path string) error {
	switch source {
	case SourceArchiver:
		return nil
	case SourceLocal:
		if path == "" {
			return &Mt.ConfigError{Field: field + ".filepath", Message: "a local source needs a file"}
		}
		return nil
	}
	return &Mt.ConfigError{Field: field + ".source", Value: source, Message: "must be archiver or local"}
}

// TimeWindow parses the configured local times and converts them to UTC
func (r *Run) TimeWindow() (Mt.Window, error) {
	loc, err := time.LoadLocation(r.Window.Location)
	if err != nil {
		return Mt.Window{}, &Mt.ConfigError{Field: "window.location", Value: r.Window.Location, Message: err.Error()}
	}
	start, err := parseLocal("window.start", r.Window.Start, loc)
	if err != nil {
		return Mt.Window{}, err
	}
	end, err := parseLocal("window.end", r.Window.End, loc)
	if err != nil {
		return Mt.Window{}, err
	}
	w := Mt.Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Mt.Window{}, err
	}
	return w.UTC(), nil
}

func parseLocal(field, s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, &Mt.ConfigError{Field: field, Message: "missing"}
	}
	for _, layout := range windowLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &Mt.ConfigError{Field: field, Value: s, Message: "unrecognized time format"}
}

// EnabledEffects parses the effect keys, failing on the first unknown one
func (r *Run) EnabledEffects() ([]Mg.EffectType, error) {
	seen := make(map[Mg.EffectType]bool)
	var out []Mg.EffectType
	for _, key := range r.Effects {
		e, err := Mg.ParseEffect(key)
		if err != nil {
			return nil, err
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, &Mt.ConfigError{Field: "effects", Message: "at least one effect must be enabled"}
	}
	return out, nil
}

func (r *Run) Enabled(e Mg.EffectType) bool {
	effects, err := r.EnabledEffects()
	if err != nil {
		return false
	}
	for _, x := range effects {
		if x == e {
			return true
		}
	}
	return false
}

func (r *Run) Lag() int {
	if r.Composition.LagSamples == nil {
		return Mc.DefaultLagSamples
	}
	return *r.Composition.LagSamples
}

// MeanMinutes is the archiver averaging bin; 0 asks for raw samples
func (r *Run) MeanMinutes() int {
	if r.Archiver.MeanMinutes == nil {
		return DefaultMeanMinutes
	}
	return *r.Archiver.MeanMinutes
}

// MaxRetries is the retry budget per channel; 0 disables retries
func (r *Run) MaxRetries() int {
	if r.Archiver.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *r.Archiver.MaxRetries
}

func (r *Run) ArchiverTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(r.Archiver.Timeout)
	if err != nil {
		return 0, &Mt.ConfigError{Field: "archiver.timeout", Value: r.Archiver.Timeout, Message: err.Error()}
	}
	if d <= 0 {
		return 0, &Mt.ConfigError{Field: "archiver.timeout", Value: r.Archiver.Timeout, Message: "must be a positive duration"}
	}
	return d, nil
}

// Options returns the composition settings of the run
func (r *Run) Options() Mc.Options {
	return Mc.Options{LagSamples: r.Lag(), HzPerMicrometer: r.Composition.HzPerMicrometer}
}
