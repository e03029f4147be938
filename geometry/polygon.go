package geometry

import (
	"fmt"
	"math"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// DistanceMode selects the edge length formula
type DistanceMode int

const (
	Mode3D DistanceMode = iota
	Mode2D              // ignores Z, for callers that never populate it
)

func (m DistanceMode) String() string {
	if m == Mode2D {
		return "2d"
	}
	return "3d"
}

// Point is one named vertex of the ring model
type Point struct {
	Name      string
	Direction float64 // degrees from East, counter-clockwise, in [0, 360)
	Initial   Mt.Vec3
}

// Polygon is the closed loop of points: i joins i+1 and the last joins the first.
// It never changes after NewPolygon.
type Polygon struct {
	points    []Point
	index     map[string]int
	nominal   float64
	radius    float64
	reference float64
}

// EvenDirections spreads n points around the circle starting at 0°
func EvenDirections(n int) []float64 {
	dirs := make([]float64, n)
	for i := range dirs {
		dirs[i] = float64(i) / float64(n) * 360
	}
	return dirs
}

// NewPolygon places the named points on a circle of circumference nominalPerimeter.
// A nil directions slice means evenly spaced. Adjacency follows the input order.
func NewPolygon(names []string, directions []float64, nominalPerimeter float64) (*Polygon, error) {
	if len(names) == 0 {
		return nil, &Mt.ConfigError{Field: "points", Message: "point list is empty"}
	}
	if len(names) < 3 {
		return nil, &Mt.ConfigError{Field: "points", Value: fmt.Sprint(len(names)), Message: "a polygon needs at least 3 points"}
	}
	if directions == nil {
		directions = EvenDirections(len(names))
	}
	if len(directions) != len(names) {
		return nil, &Mt.ConfigError{
			Field:   "directions",
			Value:   fmt.Sprintf("%d/%d", len(directions), len(names)),
			Message: "one direction is required per point",
		}
	}
	if !(nominalPerimeter > 0) || math.IsInf(nominalPerimeter, 0) {
		return nil, &Mt.ConfigError{Field: "nominal_perimeter", Value: fmt.Sprint(nominalPerimeter), Message: "must be a positive length"}
	}

	r := nominalPerimeter / (2 * math.Pi)
	p := &Polygon{
		points:  make([]Point, len(names)),
		index:   make(map[string]int, len(names)),
		nominal: nominalPerimeter,
		radius:  r,
	}

	for i, name := range names {
		if name == "" {
			return nil, &Mt.ConfigError{Field: "points", Message: fmt.Sprintf("point %d has no name", i)}
		}
		if _, dup := p.index[name]; dup {
			return nil, &Mt.ConfigError{Field: "points", Value: name, Message: "duplicate point name"}
		}
		dir := normalizeDegrees(directions[i])
		rad := dir * math.Pi / 180
		p.points[i] = Point{
			Name:      name,
			Direction: dir,
			Initial:   Mt.Vec3{X: r * math.Cos(rad), Y: r * math.Sin(rad)},
		}
		p.index[name] = i
	}

	p.reference = p.perimeterOf(p.initialSlice(), Mode3D)
	return p, nil
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func (p *Polygon) Len() int { return len(p.points) }

// Radius of the nominal circle, perimeter / 2π
func (p *Polygon) Radius() float64 { return p.radius }

func (p *Polygon) NominalPerimeter() float64 { return p.nominal }

// Points returns a copy in adjacency order
func (p *Polygon) Points() []Point {
	out := make([]Point, len(p.points))
	copy(out, p.points)
	return out
}

func (p *Polygon) Point(name string) (Point, bool) {
	i, ok := p.index[name]
	if !ok {
		return Point{}, false
	}
	return p.points[i], true
}

// InitialPositions maps every point to its undisplaced coordinate
func (p *Polygon) InitialPositions() map[string]Mt.Vec3 {
	out := make(map[string]Mt.Vec3, len(p.points))
	for _, pt := range p.points {
		out[pt.Name] = pt.Initial
	}
	return out
}

// InitialPerimeter is the constant reference every delta is taken against.
// It is the 3-D perimeter of the undisplaced polygon.
func (p *Polygon) InitialPerimeter() float64 { return p.reference }

// Perimeter sums edge lengths over the adjacency pairs in construction order.
// Every polygon point must have a position.
func (p *Polygon) Perimeter(positions map[string]Mt.Vec3, mode DistanceMode) (float64, error) {
	pos := make([]Mt.Vec3, len(p.points))
	for i, pt := range p.points {
		v, ok := positions[pt.Name]
		if !ok {
			return 0, &Mt.InsufficientDataError{Channel: pt.Name, Message: "no position for polygon point"}
		}
		pos[i] = v
	}
	return p.perimeterOf(pos, mode), nil
}

func (p *Polygon) initialSlice() []Mt.Vec3 {
	pos := make([]Mt.Vec3, len(p.points))
	for i, pt := range p.points {
		pos[i] = pt.Initial
	}
	return pos
}

func (p *Polygon) perimeterOf(pos []Mt.Vec3, mode DistanceMode) float64 {
	var sum float64
	n := len(pos)
	for i := 0; i < n; i++ {
		edge := pos[(i+1)%n].Sub(pos[i])
		if mode == Mode2D {
			sum += edge.Norm2D()
		} else {
			sum += edge.Norm()
		}
	}
	return sum
}
