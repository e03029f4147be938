package geometry

// DefaultNominalPerimeter is the design circumference of the ring, in meters
const DefaultNominalPerimeter = 518.4

// QuadrantDirections turns the arc spacing between consecutive nodes of one
// quadrant into angles for all four quadrants. The first node of each quadrant
// sits at the quadrant boundary, so a spacing list of n yields 4n directions.
func QuadrantDirections(spacing []float64, perimeter float64) []float64 {
	quarter := perimeter / 4
	dirs := make([]float64, 0, 4*len(spacing))
	for q := 0; q < 4; q++ {
		var arc float64
		for i := range spacing {
			dist := arc + float64(q)*quarter
			dirs = append(dirs, dist/perimeter*360)
			arc += spacing[i]
		}
	}
	return dirs
}
