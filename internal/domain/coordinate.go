package domain

import "math"

// Coordinate is a screen position in pixels.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NoAnswer stands for a missing or unparsable answer. It is never valid,
// so verifying it always misses while still consuming an attempt.
var NoAnswer = Coordinate{X: -1, Y: -1}

func NewCoordinate(x, y int) Coordinate {
	return Coordinate{X: x, Y: y}
}

// IsValid reports whether the coordinate is a usable screen position.
func (c Coordinate) IsValid() bool {
	return c.X >= 0 && c.Y >= 0
}

// DistanceTo returns the Euclidean distance between two coordinates.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	dx := float64(c.X - other.X)
	dy := float64(c.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// XDistanceTo returns the absolute horizontal distance.
func (c Coordinate) XDistanceTo(other Coordinate) int {
	d := c.X - other.X
	if d < 0 {
		return -d
	}
	return d
}

// WithinTolerance reports whether other lies inside a circle of radius
// tolerance around c.
func (c Coordinate) WithinTolerance(other Coordinate, tolerance float64) bool {
	return c.DistanceTo(other) <= tolerance
}
