// Package model contains domain models passed between layers.
package model

// Point is a single sampled pointer position in surface coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Path is an ordered sequence of points, in sampling order.
type Path []Point

// Surface describes the drawing area the browser reported.
type Surface struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Surface) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Center returns the fixed point the player draws around.
func (s Surface) Center() Point {
	return Point{X: s.Width / 2, Y: s.Height / 2}
}
