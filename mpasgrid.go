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

// Package mpasgrid regrids output from the MPAS atmospheric model's
// unstructured Voronoi mesh onto regular latitude-longitude grids.
//
// The regridding is split into two steps so that the expensive one is
// paid only once per mesh-grid pair: BuildWeights finds the three mesh
// cells nearest each target grid point and turns their distances into
// normalized inverse-distance weights, and Apply combines those cached
// weights with any number of per-cell field arrays, looping over time
// steps and vertical levels. Grid points whose nearest mesh cell is
// farther than a configured threshold are masked with NaN rather than
// extrapolated.
package mpasgrid

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// Version gives the version number of this library.
const Version = "0.3.0"

const (
	// EarthRadiusKm is the mean Earth radius used to convert angular
	// great-circle distances to kilometers. The choice of radius is a
	// modeling convention rather than a precision requirement, but the
	// distance masking threshold is defined in terms of it, so distances
	// compared against Weights.MaxDistKm must be converted with this
	// constant.
	EarthRadiusKm = 6371.

	// idwNeighbors is the number of mesh cells contributing to each grid
	// point. Three neighbors balance smoothness against over-blurring at
	// mesh-resolution boundaries; the weight normalization and the
	// coincident-point behavior both assume exactly this count.
	idwNeighbors = 3

	// idwEpsilon guards the inverse-square-distance denominator so that
	// a grid point exactly coincident with a mesh cell gets a weight
	// dominated by that cell instead of a division by zero. With
	// distances in kilometers the ε term is negligible everywhere else.
	idwEpsilon = 1e-10
)

// Mesh holds the ordered cell center locations of an unstructured MPAS
// mesh. For each cell, X is longitude and Y is latitude in degrees, with
// longitude in (-180, 180]. Field arrays regridded against this mesh
// index their cell axis in the same order.
type Mesh struct {
	Cells []geom.Point
}

// NewMesh creates a Mesh from per-cell latitudes and longitudes in
// degrees. Longitudes are normalized to (-180, 180]; latitudes outside
// [-90, 90] are rejected.
func NewMesh(lat, lon []float64) (*Mesh, error) {
	if len(lat) == 0 {
		return nil, ConfigurationError("mesh has no cells")
	}
	if len(lat) != len(lon) {
		return nil, ConfigurationError(fmt.Sprintf(
			"mesh has %d latitudes but %d longitudes", len(lat), len(lon)))
	}
	m := &Mesh{Cells: make([]geom.Point, len(lat))}
	for i, la := range lat {
		if la < -90 || la > 90 {
			return nil, ConfigurationError(fmt.Sprintf(
				"mesh cell %d: latitude %g outside [-90, 90]", i, la))
		}
		m.Cells[i] = geom.Point{X: normalizeLon(lon[i]), Y: la}
	}
	return m, nil
}

// Len returns the number of cells in the mesh.
func (m *Mesh) Len() int { return len(m.Cells) }

// normalizeLon wraps a longitude in degrees into (-180, 180].
func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon > 180 {
		lon -= 360
	} else if lon <= -180 {
		lon += 360
	}
	return lon
}
