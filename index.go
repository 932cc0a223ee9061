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
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// SpatialIndex answers k-nearest-neighbor queries over the cell centers
// of a Mesh under great-circle distance. It is read-only after
// construction and safe for concurrent queries.
//
// Internally the cells are indexed as Cartesian points on the unit
// sphere: chord distance is monotone in central angle, so the nearest
// neighbors under the Euclidean chord metric are exactly the nearest
// neighbors under haversine, without any special handling of the poles
// or the antimeridian.
type SpatialIndex struct {
	tree *kdtree.Tree
	size int
}

// NewSpatialIndex builds an index over the cells of m.
func NewSpatialIndex(m *Mesh) (*SpatialIndex, error) {
	if m == nil || m.Len() == 0 {
		return nil, ConfigurationError("cannot build a spatial index over an empty mesh")
	}
	nodes := make(meshNodes, m.Len())
	for i, c := range m.Cells {
		nodes[i] = meshNode{xyz: sphereXYZ(c.Y, c.X), cell: i}
	}
	return &SpatialIndex{tree: kdtree.New(nodes, true), size: m.Len()}, nil
}

// Len returns the number of indexed mesh cells.
func (s *SpatialIndex) Len() int { return s.size }

// Query returns, for each query point (longitude X, latitude Y, in
// degrees), the indices of the k nearest mesh cells and the angular
// great-circle distances to them in radians, both with shape
// (len(points), k) and ordered ascending by distance. Multiply the
// distances by EarthRadiusKm to obtain kilometers.
func (s *SpatialIndex) Query(points []geom.Point, k int) (*sparse.DenseArrayInt, *sparse.DenseArray, error) {
	if k < 1 || k > s.size {
		return nil, nil, ConfigurationError(fmt.Sprintf(
			"cannot query %d neighbors from a %d-cell mesh", k, s.size))
	}
	indices := sparse.ZerosDenseInt(len(points), k)
	dists := sparse.ZerosDense(len(points), k)
	for qi, p := range points {
		keep := kdtree.NewNKeeper(k)
		s.tree.NearestSet(keep, meshNode{xyz: sphereXYZ(p.Y, p.X)})
		// NearestSet leaves the keeper sorted ascending by distance.
		for j, nd := range keep.Heap {
			indices.Elements[qi*k+j] = nd.Comparable.(meshNode).cell
			dists.Elements[qi*k+j] = chordToAngle(nd.Dist)
		}
	}
	return indices, dists, nil
}

// sphereXYZ converts latitude and longitude in degrees to Cartesian
// coordinates on the unit sphere.
func sphereXYZ(latDeg, lonDeg float64) [3]float64 {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	return [3]float64{
		math.Cos(lat) * math.Cos(lon),
		math.Cos(lat) * math.Sin(lon),
		math.Sin(lat),
	}
}

// chordToAngle converts a squared unit-sphere chord length to the
// central angle it subtends [radians].
func chordToAngle(chord2 float64) float64 {
	return 2 * math.Asin(math.Min(1, math.Sqrt(chord2)/2))
}

// meshNode is one mesh cell center on the unit sphere, carrying its
// index into the per-cell field arrays.
type meshNode struct {
	xyz  [3]float64
	cell int
}

func (n meshNode) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return n.xyz[d] - c.(meshNode).xyz[d]
}

func (n meshNode) Dims() int { return 3 }

// Distance returns the squared Euclidean (chord) distance between n and c.
func (n meshNode) Distance(c kdtree.Comparable) float64 {
	q := c.(meshNode)
	var sum float64
	for i, x := range n.xyz {
		dx := x - q.xyz[i]
		sum += dx * dx
	}
	return sum
}

// meshNodes implements kdtree.Interface.
type meshNodes []meshNode

func (m meshNodes) Index(i int) kdtree.Comparable        { return m[i] }
func (m meshNodes) Len() int                             { return len(m) }
func (m meshNodes) Pivot(d kdtree.Dim) int               { return nodePlane{meshNodes: m, Dim: d}.Pivot() }
func (m meshNodes) Slice(start, end int) kdtree.Interface { return m[start:end] }

// nodePlane is a hyperplane through the mesh nodes, used for pivoting
// during tree construction.
type nodePlane struct {
	meshNodes
	kdtree.Dim
}

func (p nodePlane) Less(i, j int) bool {
	return p.meshNodes[i].xyz[p.Dim] < p.meshNodes[j].xyz[p.Dim]
}
func (p nodePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p nodePlane) Slice(start, end int) kdtree.SortSlicer {
	p.meshNodes = p.meshNodes[start:end]
	return p
}
func (p nodePlane) Swap(i, j int) {
	p.meshNodes[i], p.meshNodes[j] = p.meshNodes[j], p.meshNodes[i]
}
