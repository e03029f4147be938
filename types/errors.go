package types

import (
	"errors"
	"fmt"
)

// ConfigError is raised before any computation starts:
// unknown keys, empty or mismatched lists, bad windows.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s %q: %s", e.Field, e.Value, e.Message)
}

// InsufficientDataError names the channel whose shape broke the run.
type InsufficientDataError struct {
	Channel string
	Want    int
	Got     int
	Message string
}

func (e *InsufficientDataError) Error() string {
	if e.Want == 0 && e.Got == 0 {
		return fmt.Sprintf("insufficient data: %s: %s", e.Channel, e.Message)
	}
	return fmt.Sprintf("insufficient data: %s: %s (want %d, got %d)", e.Channel, e.Message, e.Want, e.Got)
}

// UpstreamError is an I/O failure that survived the retry policy.
type UpstreamError struct {
	Op       string
	Target   string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed after %d attempt(s): %s: %v", e.Op, e.Attempts, e.Target, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}

func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
