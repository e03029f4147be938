package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// Unset is what FillEnvVar returns for a variable that is not defined
const Unset = "ENOENT"

const (
	EnvArchiverURL = "RINGDEFORM_ARCHIVER_URL"
	EnvCachePath   = "RINGDEFORM_CACHE_PATH"
	EnvAddr        = "RINGDEFORM_ADDR"
	EnvMaxRetries  = "RINGDEFORM_MAX_RETRIES"
)

// LoadEnv reads .env style files into the process environment.
// Missing files are skipped; variables already set are left alone.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("No env file", slog.String("file", f))
				continue
			}
			return &Mt.ConfigError{Field: "env", Value: f, Message: err.Error()}
		}
		slog.Info("Loaded env file", slog.String("file", f))
	}
	return nil
}

// FillEnvVar returns the value of a runtime Environment Variable
func FillEnvVar(ev string) string {
	value := os.Getenv(ev)
	if value == "" {
		value = Unset
	}
	return value
}

// FillEnvVarInt parses an integer variable, returning def when it is unset or malformed
func FillEnvVarInt(ev string, def int) int {
	v := FillEnvVar(ev)
	if v == Unset {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring malformed integer", slog.String("var", ev), slog.String("value", v))
		return def
	}
	return n
}

// ApplyEnv lets the environment override deployment specific fields
func (r *Run) ApplyEnv() {
	if v := FillEnvVar(EnvArchiverURL); v != Unset {
		r.Archiver.URL = v
	}
	if v := FillEnvVar(EnvCachePath); v != Unset {
		r.Archiver.CachePath = v
	}
	if v := FillEnvVar(EnvMaxRetries); v != Unset {
		n := FillEnvVarInt(EnvMaxRetries, r.MaxRetries())
		r.Archiver.MaxRetries = &n
	}
}
