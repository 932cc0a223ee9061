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

// Dimension names used by MPAS NetCDF output.
const (
	timeDim = "Time"
	cellDim = "nCells"
)

// verticalDims is the closed set of vertical level dimensions recognized
// in MPAS output. Recognition is by name rather than by size because the
// level counts vary between model configurations.
var verticalDims = map[string]bool{
	"nVertLevels":   true, // model layer midpoints
	"nVertLevelsP1": true, // model layer interfaces
	"nSoilLevels":   true, // land-surface soil layers
	"nIsoLevelsT":   true, // isobaric temperature levels
	"nIsoLevelsZ":   true, // isobaric geopotential height levels
}

// VarInfo describes how one NetCDF variable maps onto the regridding
// axes. It is derived purely from the variable's dimension names, so
// variables added in newer model versions classify without code changes.
type VarInfo struct {
	Name string
	Dims []string

	// HasTime reports whether one of the axes is the time dimension.
	HasTime bool

	// VerticalDim is the name of the variable's vertical level axis, or
	// empty for single-level variables.
	VerticalDim string
}

// Classify reports how the variable named name with the given dimensions
// maps onto the regridding axes. ok is false if the variable has no
// mesh-cell axis and therefore cannot be regridded.
func Classify(name string, dims []string) (v VarInfo, ok bool) {
	v = VarInfo{Name: name, Dims: dims}
	for _, d := range dims {
		switch {
		case d == cellDim:
			ok = true
		case d == timeDim:
			v.HasTime = true
		case verticalDims[d]:
			v.VerticalDim = d
		}
	}
	return v, ok
}
