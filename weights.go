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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Weights is the reusable interpolation artifact for one mesh-grid pair:
// for every target grid point, the indices of its three nearest mesh
// cells, the great-circle distances to them in kilometers, and their
// normalized inverse-distance weights, plus a validity flag marking grid
// points whose nearest cell is within MaxDistKm.
//
// A Weights value is a pure function of the mesh, the grid spec and the
// distance threshold, so it may be persisted and reused across any
// number of fields and time steps, but it must never outlive a change to
// any of the three: the artifact records the grid spec and mesh size so
// that reuse against a different mesh or grid can be rejected (see
// CheckGrid and Apply) instead of silently producing misplaced data.
type Weights struct {
	Grid      GridSpec
	MaxDistKm float64
	MeshSize  int

	// Indices, DistKm and W have shape (grid points, 3), with the grid
	// points enumerated as in GridSpec.Points and the three neighbors
	// ordered ascending by distance. Each point's three weights sum
	// to 1.
	Indices *sparse.DenseArrayInt
	DistKm  *sparse.DenseArray
	W       *sparse.DenseArray

	// Valid flags each grid point whose nearest mesh cell is within
	// MaxDistKm. The check uses only the first neighbor: a grid point
	// counts as inside mesh coverage if the closest source data is
	// near enough, regardless of how far away the second and third
	// neighbors are.
	Valid []bool
}

// BuildWeights computes the interpolation weights mapping the mesh
// behind index onto the target grid. Each grid point receives weights
// 1/(d²+ε) over its three nearest mesh cells, normalized to sum to 1,
// where d is the great-circle distance in kilometers; a grid point
// exactly on top of a mesh cell therefore ends up almost entirely
// weighted toward that cell rather than failing. Grid points whose
// nearest cell is farther than maxDistKm are flagged invalid.
//
// The computation is deterministic: identical inputs yield bit-identical
// artifacts. It is also the expensive step, which is why it is separate
// from Apply: one artifact is amortized over many fields.
func BuildWeights(index *SpatialIndex, grid GridSpec, maxDistKm float64) (*Weights, error) {
	if err := grid.Check(); err != nil {
		return nil, err
	}
	if maxDistKm <= 0 {
		return nil, ConfigurationError(fmt.Sprintf("maximum distance %g km is not positive", maxDistKm))
	}
	pts := grid.Points()
	indices, dists, err := index.Query(pts, idwNeighbors)
	if err != nil {
		return nil, err
	}
	dists.Scale(EarthRadiusKm) // radians to km
	w := &Weights{
		Grid:      grid,
		MaxDistKm: maxDistKm,
		MeshSize:  index.Len(),
		Indices:   indices,
		DistKm:    dists,
		W:         sparse.ZerosDense(len(pts), idwNeighbors),
		Valid:     make([]bool, len(pts)),
	}
	for i := range pts {
		row := w.W.Elements[i*idwNeighbors : (i+1)*idwNeighbors]
		for j := range row {
			d := w.DistKm.Elements[i*idwNeighbors+j]
			row[j] = 1 / (d*d + idwEpsilon)
		}
		floats.Scale(1/floats.Sum(row), row)
		w.Valid[i] = w.DistKm.Elements[i*idwNeighbors] <= maxDistKm
	}
	return w, nil
}

// Shape returns the number of grid rows (latitudes) and columns
// (longitudes) that applied fields are reshaped to.
func (w *Weights) Shape() (rows, cols int) { return w.Grid.Shape() }

// Mask returns the validity mask as a (rows, cols) array holding 1 at
// grid points inside mesh coverage and 0 elsewhere. The mask is shared
// by every field regridded with w.
func (w *Weights) Mask() *sparse.DenseArray {
	rows, cols := w.Shape()
	m := sparse.ZerosDense(rows, cols)
	for i, ok := range w.Valid {
		if ok {
			m.Elements[i] = 1
		}
	}
	return m
}

// Revalidate recomputes the validity mask for a new maximum neighbor
// distance. The indices, distances and weights are unaffected: the mask
// is the only part of the artifact that depends on the threshold, so
// changing the threshold does not require a rebuild.
func (w *Weights) Revalidate(maxDistKm float64) {
	w.MaxDistKm = maxDistKm
	for i := range w.Valid {
		w.Valid[i] = w.DistKm.Elements[i*idwNeighbors] <= maxDistKm
	}
}

// CheckGrid returns a StaleWeightsError if w was built against a grid
// other than grid. Mesh changes are caught by Apply through the field's
// cell-axis length, but a grid change is only detectable through this
// explicit check, so callers reusing persisted weights should call it
// before relying on the output geometry.
func (w *Weights) CheckGrid(grid GridSpec) error {
	if w.Grid != grid {
		return StaleWeightsError{Have: w.Grid, Want: grid}
	}
	return nil
}
