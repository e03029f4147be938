package types

/*

	These are the "immutable" core types of ringdeform,
	provided for cross-package use (providers, geometry, composition) and testing.

	Behaviour lives with the types only where it is pure arithmetic.
	Constructors with validation are housed in their own packages,
	except for the Signal Table which checks its own shape.

*/

import (
	"fmt"
	"math"
	"time"
)

// Vec3 is a Cartesian position or offset in meters.
// X points East, Y points North, Z points Up.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Norm is the 3-D Euclidean length
func (v Vec3) Norm() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Norm2D ignores Z
func (v Vec3) Norm2D() float64 { return math.Hypot(v.X, v.Y) }

// NEU is a displacement in a local tangent frame, meters.
type NEU struct {
	North float64
	East  float64
	Up    float64
}

// Neg returns the opposite displacement
func (n NEU) Neg() NEU { return NEU{North: -n.North, East: -n.East, Up: -n.Up} }

// Sample is one archived value of a single channel.
type Sample struct {
	Time  time.Time
	Value float64
}

// Window is a closed analysis interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate fails when the window is empty or inverted
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return &ConfigError{Field: "window", Message: "start and end are required"}
	}
	if !w.End.After(w.Start) {
		return &ConfigError{
			Field:   "window",
			Value:   fmt.Sprintf("%s..%s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339)),
			Message: "end must be after start",
		}
	}
	return nil
}

// Contains is inclusive on both ends
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// UTC returns the same instants expressed in UTC
func (w Window) UTC() Window {
	return Window{Start: w.Start.UTC(), End: w.End.UTC()}
}

// Days lists the calendar days touched by the window, at midnight
// in the location of Start.
func (w Window) Days() []time.Time {
	loc := w.Start.Location()
	end := w.End.In(loc)
	day := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, loc)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)

	var days []time.Time
	for !day.After(last) {
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
	}
	return days
}
