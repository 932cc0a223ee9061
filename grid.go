/*
Copyright © 2026 the MPASGrid authors.
This file is part of MPASGrid.

MPASGrid is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

MPASGrid is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with MPASGrid.  If not, see <http://www.gnu.org/licenses/>.
*/

package mpasgrid

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// GridSpec defines a regular latitude-longitude target grid by its
// bounds and angular resolution, all in degrees. Ranges are half-open:
// coordinates run from the minimum up to but not including the maximum
// in steps of Resolution, so the point count is reproducible from the
// specification alone.
type GridSpec struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
	Resolution     float64
}

// Check returns an error if g does not describe a non-empty grid.
func (g GridSpec) Check() error {
	if g.Resolution <= 0 {
		return ConfigurationError(fmt.Sprintf("grid resolution %g is not positive", g.Resolution))
	}
	if g.LatMax <= g.LatMin {
		return ConfigurationError(fmt.Sprintf("grid latitude range [%g, %g) is empty", g.LatMin, g.LatMax))
	}
	if g.LonMax <= g.LonMin {
		return ConfigurationError(fmt.Sprintf("grid longitude range [%g, %g) is empty", g.LonMin, g.LonMax))
	}
	return nil
}

// Shape returns the number of grid rows (latitudes) and columns
// (longitudes).
func (g GridSpec) Shape() (rows, cols int) {
	return rangeCount(g.LatMin, g.LatMax, g.Resolution),
		rangeCount(g.LonMin, g.LonMax, g.Resolution)
}

// Lats returns the 1-D latitude coordinate array.
func (g GridSpec) Lats() []float64 { return rangeVals(g.LatMin, g.LatMax, g.Resolution) }

// Lons returns the 1-D longitude coordinate array.
func (g GridSpec) Lons() []float64 { return rangeVals(g.LonMin, g.LonMax, g.Resolution) }

// Points enumerates the grid points in row-major order with latitude
// outermost, the same order Weights stores its per-point arrays in and
// gridded output arrays are reshaped to.
func (g GridSpec) Points() []geom.Point {
	lats, lons := g.Lats(), g.Lons()
	pts := make([]geom.Point, 0, len(lats)*len(lons))
	for _, la := range lats {
		for _, lo := range lons {
			pts = append(pts, geom.Point{X: lo, Y: la})
		}
	}
	return pts
}

// Bounds returns the bounding box of the grid.
func (g GridSpec) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: g.LonMin, Y: g.LatMin},
		Max: geom.Point{X: g.LonMax, Y: g.LatMax},
	}
}

func rangeCount(min, max, step float64) int {
	return int(math.Ceil((max - min) / step))
}

func rangeVals(min, max, step float64) []float64 {
	v := make([]float64, rangeCount(min, max, step))
	for i := range v {
		v[i] = min + float64(i)*step
	}
	return v
}
