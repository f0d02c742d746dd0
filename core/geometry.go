package core

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/signalsfoundry/coverage-sim/model"
)

// vec lifts a plot point into gonum's planar vector type.
func vec(p model.Point) r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// Distance returns the straight-line distance between two points.
// NaN and infinite coordinates propagate as they would through math.Hypot.
func Distance(a, b model.Point) float64 {
	return r2.Norm(r2.Sub(vec(a), vec(b)))
}

// ScalePoint maps value onto [0, 1] relative to maxPoint.
//
// maxPoint must be positive; callers obtain it from MaxPoint, which is
// floored at a positive plot extent, so a zero here is a programming error.
func ScalePoint(value, maxPoint float64) float64 {
	if maxPoint <= 0 {
		panic(fmt.Sprintf("core: ScalePoint called with non-positive maxPoint %v", maxPoint))
	}
	return value / maxPoint
}
