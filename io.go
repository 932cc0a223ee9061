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
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// ReadMesh reads the cell center coordinates from an MPAS static or grid
// file. MPAS stores latCell and lonCell in radians with longitude in
// [0, 2π); the returned Mesh is in degrees with longitude normalized to
// (-180, 180].
func ReadMesh(filename string) (*Mesh, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("mpasgrid: opening mesh file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("mpasgrid: reading mesh file %s: %v", filename, err)
	}
	lat, err := read1D(ff, "latCell")
	if err != nil {
		return nil, err
	}
	lon, err := read1D(ff, "lonCell")
	if err != nil {
		return nil, err
	}
	for i := range lat {
		lat[i] *= 180 / math.Pi
	}
	for i := range lon {
		lon[i] *= 180 / math.Pi
	}
	return NewMesh(lat, lon)
}

// read1D reads a fixed-size 1-D variable, widening to float64.
func read1D(ff *cdf.File, name string) ([]float64, error) {
	lengths := ff.Header.Lengths(name)
	if len(lengths) == 0 {
		return nil, fmt.Errorf("mpasgrid: variable %s is not in the file", name)
	}
	if len(lengths) != 1 || lengths[0] == 0 {
		return nil, fmt.Errorf("mpasgrid: variable %s is not a fixed 1-D variable", name)
	}
	r := ff.Reader(name, []int{0}, lengths)
	buf := r.Zero(lengths[0])
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("mpasgrid: reading variable %s: %v", name, err)
	}
	return toFloat64(buf)
}

// readField reads an entire variable, widening to float64. Variables
// along the record (time) dimension are read one record at a time
// because the record count is not part of the header; fsize is the size
// of the underlying file, used to establish that count.
func readField(ff *cdf.File, fsize int64, name string) (*sparse.DenseArray, error) {
	lengths := ff.Header.Lengths(name)
	if len(lengths) == 0 {
		return nil, fmt.Errorf("mpasgrid: variable %s is not in the file", name)
	}
	if lengths[0] != 0 { // fixed-size variable
		r := ff.Reader(name, make([]int, len(lengths)), lengths)
		buf := r.Zero(product(lengths))
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("mpasgrid: reading variable %s: %v", name, err)
		}
		vals, err := toFloat64(buf)
		if err != nil {
			return nil, fmt.Errorf("mpasgrid: variable %s: %v", name, err)
		}
		data := sparse.ZerosDense(lengths...)
		copy(data.Elements, vals)
		return data, nil
	}

	nrec := int(ff.Header.NumRecs(fsize))
	per := product(lengths[1:])
	shape := append([]int{nrec}, lengths[1:]...)
	data := sparse.ZerosDense(shape...)
	for t := 0; t < nrec; t++ {
		start, end := make([]int, len(lengths)), make([]int, len(lengths))
		start[0], end[0] = t, t+1
		r := ff.Reader(name, start, end)
		buf := r.Zero(per)
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("mpasgrid: reading variable %s record %d: %v", name, t, err)
		}
		vals, err := toFloat64(buf)
		if err != nil {
			return nil, fmt.Errorf("mpasgrid: variable %s: %v", name, err)
		}
		copy(data.Elements[t*per:(t+1)*per], vals)
	}
	return data, nil
}

// toFloat64 widens a NetCDF read buffer to float64.
func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
}

func product(x []int) int {
	n := 1
	for _, v := range x {
		n *= v
	}
	return n
}

// Write saves w as a NetCDF file holding the three per-grid-point
// parallel arrays (neighbor indices, distances and normalized weights,
// all in GridSpec.Points order) along with the grid spec, mesh size and
// distance threshold the artifact derives from. ReadWeights reverses it.
func (w *Weights) Write(filename string) error {
	n := len(w.Valid)
	h := cdf.NewHeader([]string{"points", "neighbors"}, []int{n, idwNeighbors})
	h.AddVariable("ilocs", []string{"points", "neighbors"}, []int32{0})
	h.AddAttribute("ilocs", "description", "indices of the nearest mesh cells for each grid point, ascending by distance")
	h.AddVariable("dist_km", []string{"points", "neighbors"}, []float64{0})
	h.AddAttribute("dist_km", "description", "great-circle distances to the nearest mesh cells")
	h.AddAttribute("dist_km", "units", "km")
	h.AddVariable("weights", []string{"points", "neighbors"}, []float64{0})
	h.AddAttribute("weights", "description", "normalized inverse-distance weights")
	h.AddAttribute("", "lat_min", []float64{w.Grid.LatMin})
	h.AddAttribute("", "lat_max", []float64{w.Grid.LatMax})
	h.AddAttribute("", "lon_min", []float64{w.Grid.LonMin})
	h.AddAttribute("", "lon_max", []float64{w.Grid.LonMax})
	h.AddAttribute("", "resolution_deg", []float64{w.Grid.Resolution})
	h.AddAttribute("", "max_distance_km", []float64{w.MaxDistKm})
	h.AddAttribute("", "mesh_size", []int32{int32(w.MeshSize)})
	h.AddAttribute("", "earth_radius_km", []float64{EarthRadiusKm})
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("mpasgrid: creating weight file header: %v", err)
	}
	ff, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("mpasgrid: creating weight file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("mpasgrid: creating weight file %s: %v", filename, err)
	}
	ilocs := make([]int32, len(w.Indices.Elements))
	for i, v := range w.Indices.Elements {
		ilocs[i] = int32(v)
	}
	end := []int{n, idwNeighbors}
	if _, err := f.Writer("ilocs", []int{0, 0}, end).Write(ilocs); err != nil {
		return fmt.Errorf("mpasgrid: writing weight file indices: %v", err)
	}
	if _, err := f.Writer("dist_km", []int{0, 0}, end).Write(w.DistKm.Elements); err != nil {
		return fmt.Errorf("mpasgrid: writing weight file distances: %v", err)
	}
	if _, err := f.Writer("weights", []int{0, 0}, end).Write(w.W.Elements); err != nil {
		return fmt.Errorf("mpasgrid: writing weight file weights: %v", err)
	}
	return nil
}

// ReadWeights loads a weight artifact saved by Weights.Write. The
// validity mask is recomputed from the stored distances and threshold,
// and the stored grid spec must reproduce the stored array sizes; a file
// failing either check is rejected rather than applied.
func ReadWeights(filename string) (*Weights, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("mpasgrid: opening weight file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("mpasgrid: reading weight file %s: %v", filename, err)
	}
	var grid GridSpec
	var maxDist float64
	for _, a := range []struct {
		name string
		dst  *float64
	}{
		{"lat_min", &grid.LatMin},
		{"lat_max", &grid.LatMax},
		{"lon_min", &grid.LonMin},
		{"lon_max", &grid.LonMax},
		{"resolution_deg", &grid.Resolution},
		{"max_distance_km", &maxDist},
	} {
		v, err := globalAttrFloat(ff.Header, a.name)
		if err != nil {
			return nil, err
		}
		*a.dst = v
	}
	meshSize, err := globalAttrInt(ff.Header, "mesh_size")
	if err != nil {
		return nil, err
	}

	lengths := ff.Header.Lengths("weights")
	if len(lengths) != 2 || lengths[1] != idwNeighbors {
		return nil, fmt.Errorf("mpasgrid: weight file %s does not hold %d-neighbor weights", filename, idwNeighbors)
	}
	n := lengths[0]
	rows, cols := grid.Shape()
	if rows*cols != n {
		return nil, fmt.Errorf("mpasgrid: weight file %s holds %d grid points but its recorded grid spec describes %d",
			filename, n, rows*cols)
	}

	w := &Weights{
		Grid:     grid,
		MeshSize: meshSize,
		Indices:  sparse.ZerosDenseInt(n, idwNeighbors),
		DistKm:   sparse.ZerosDense(n, idwNeighbors),
		W:        sparse.ZerosDense(n, idwNeighbors),
		Valid:    make([]bool, n),
	}
	end := []int{n, idwNeighbors}
	ilocs, err := readInt32(ff, "ilocs", end)
	if err != nil {
		return nil, err
	}
	for i, v := range ilocs {
		if int(v) < 0 || int(v) >= meshSize {
			return nil, fmt.Errorf("mpasgrid: weight file %s: cell index %d outside the recorded %d-cell mesh",
				filename, v, meshSize)
		}
		w.Indices.Elements[i] = int(v)
	}
	if err := readInto(ff, "dist_km", end, w.DistKm.Elements); err != nil {
		return nil, err
	}
	if err := readInto(ff, "weights", end, w.W.Elements); err != nil {
		return nil, err
	}
	w.Revalidate(maxDist)
	return w, nil
}

func readInt32(ff *cdf.File, name string, end []int) ([]int32, error) {
	r := ff.Reader(name, make([]int, len(end)), end)
	buf := r.Zero(product(end))
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("mpasgrid: reading weight file variable %s: %v", name, err)
	}
	v, ok := buf.([]int32)
	if !ok {
		return nil, fmt.Errorf("mpasgrid: weight file variable %s has type %T, want []int32", name, buf)
	}
	return v, nil
}

func readInto(ff *cdf.File, name string, end []int, dst []float64) error {
	r := ff.Reader(name, make([]int, len(end)), end)
	buf := r.Zero(len(dst))
	if _, err := r.Read(buf); err != nil {
		return fmt.Errorf("mpasgrid: reading weight file variable %s: %v", name, err)
	}
	v, ok := buf.([]float64)
	if !ok {
		return fmt.Errorf("mpasgrid: weight file variable %s has type %T, want []float64", name, buf)
	}
	copy(dst, v)
	return nil
}

func globalAttrFloat(h *cdf.Header, name string) (float64, error) {
	switch v := h.GetAttribute("", name).(type) {
	case []float64:
		if len(v) == 1 {
			return v[0], nil
		}
	case []float32:
		if len(v) == 1 {
			return float64(v[0]), nil
		}
	}
	return 0, fmt.Errorf("mpasgrid: weight file is missing attribute %s", name)
}

func globalAttrInt(h *cdf.Header, name string) (int, error) {
	if v, ok := h.GetAttribute("", name).([]int32); ok && len(v) == 1 {
		return int(v[0]), nil
	}
	return 0, fmt.Errorf("mpasgrid: weight file is missing attribute %s", name)
}

// GriddedVar is one regridded variable ready to be written to a regular
// grid output file. Dims names every axis of Data in order and must end
// with "lat", "lon"; any leading entries are the time axis and vertical
// level axis names carried over from the input.
type GriddedVar struct {
	Name        string
	Description string
	Units       string
	Dims        []string
	Data        *sparse.DenseArray
}

// WriteGridded writes regridded variables and their grid coordinates to
// a NetCDF file, with 1-D lat and lon coordinate variables and global
// attributes recording the interpolation settings. Out-of-coverage grid
// points keep their NaN sentinel in the file.
func WriteGridded(filename, sourceFile string, grid GridSpec, maxDistKm float64, vars []GriddedVar) error {
	lats, lons := grid.Lats(), grid.Lons()

	// Collect the dimensions used by the output variables, checking that
	// shared dimension names agree on length.
	dimNames := []string{"lat", "lon"}
	dimLens := map[string]int{"lat": len(lats), "lon": len(lons)}
	for _, v := range vars {
		if len(v.Dims) != len(v.Data.Shape) || len(v.Dims) < 2 ||
			v.Dims[len(v.Dims)-2] != "lat" || v.Dims[len(v.Dims)-1] != "lon" {
			return fmt.Errorf("mpasgrid: output variable %s: dimensions %v do not match shape %v ending in lat, lon",
				v.Name, v.Dims, v.Data.Shape)
		}
		for i, d := range v.Dims {
			if have, ok := dimLens[d]; ok {
				if have != v.Data.Shape[i] {
					return fmt.Errorf("mpasgrid: output variable %s: dimension %s has length %d here but %d elsewhere",
						v.Name, d, v.Data.Shape[i], have)
				}
				continue
			}
			dimNames = append(dimNames, d)
			dimLens[d] = v.Data.Shape[i]
		}
	}
	lengths := make([]int, len(dimNames))
	for i, d := range dimNames {
		lengths[i] = dimLens[d]
	}

	h := cdf.NewHeader(dimNames, lengths)
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	for _, v := range vars {
		h.AddVariable(v.Name, v.Dims, []float64{0})
		if v.Description != "" {
			h.AddAttribute(v.Name, "description", v.Description)
		}
		if v.Units != "" {
			h.AddAttribute(v.Name, "units", v.Units)
		}
	}
	h.AddAttribute("", "title", "MPAS data interpolated to regular grid")
	h.AddAttribute("", "source_file", sourceFile)
	h.AddAttribute("", "interpolation_method", fmt.Sprintf("Inverse distance weighting (k=%d)", idwNeighbors))
	h.AddAttribute("", "max_distance_km", []float64{maxDistKm})
	h.AddAttribute("", "grid_resolution_deg", []float64{grid.Resolution})
	h.AddAttribute("", "grid_bounds", fmt.Sprintf("lon:[%g, %g), lat:[%g, %g)",
		grid.LonMin, grid.LonMax, grid.LatMin, grid.LatMax))
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("mpasgrid: creating output file header: %v", err)
	}

	ff, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("mpasgrid: creating output file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("mpasgrid: creating output file %s: %v", filename, err)
	}
	if _, err := f.Writer("lat", []int{0}, []int{len(lats)}).Write(lats); err != nil {
		return fmt.Errorf("mpasgrid: writing output latitudes: %v", err)
	}
	if _, err := f.Writer("lon", []int{0}, []int{len(lons)}).Write(lons); err != nil {
		return fmt.Errorf("mpasgrid: writing output longitudes: %v", err)
	}
	for _, v := range vars {
		if _, err := f.Writer(v.Name, make([]int, len(v.Dims)), v.Data.Shape).Write(v.Data.Elements); err != nil {
			return fmt.Errorf("mpasgrid: writing output variable %s: %v", v.Name, err)
		}
	}
	return nil
}
