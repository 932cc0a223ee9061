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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// diagFilePatterns matches the MPAS output streams that hold regriddable
// diagnostic fields, in the order they are searched.
var diagFilePatterns = []string{"diag.*.nc", "history.*.nc", "output.*.nc"}

// Converter regrids MPAS model output files onto a regular
// latitude-longitude grid.
type Converter struct {
	Grid      GridSpec
	MaxDistKm float64

	// NumProcessors is the number of worker goroutines used when
	// applying weights; values below 1 mean one per available core.
	NumProcessors int

	// Log receives progress information. If nil, the logrus standard
	// logger is used.
	Log *logrus.Logger
}

// NewConverter creates a Converter for the given target grid and
// coverage threshold.
func NewConverter(grid GridSpec, maxDistKm float64) (*Converter, error) {
	if err := grid.Check(); err != nil {
		return nil, err
	}
	if maxDistKm <= 0 {
		return nil, ConfigurationError(fmt.Sprintf("maximum distance %g km is not positive", maxDistKm))
	}
	return &Converter{Grid: grid, MaxDistKm: maxDistKm}, nil
}

func (c *Converter) log() *logrus.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logrus.StandardLogger()
}

// Weights returns interpolation weights for the mesh in staticFile. If
// weightsFile names a previously saved artifact for the same grid and a
// rebuild is not forced, the saved weights are reused with the validity
// mask refreshed for the current distance threshold; otherwise the
// weights are built from the mesh and, if weightsFile is non-empty,
// saved there for next time.
func (c *Converter) Weights(staticFile, weightsFile string, force bool) (*Weights, error) {
	if weightsFile != "" && !force {
		if _, err := os.Stat(weightsFile); err == nil {
			w, err := ReadWeights(weightsFile)
			switch {
			case err != nil:
				c.log().WithField("file", weightsFile).Warnf("ignoring unreadable weight file: %v", err)
			case w.CheckGrid(c.Grid) != nil:
				c.log().WithField("file", weightsFile).Warn(
					"saved weights were built for a different grid; rebuilding")
			default:
				w.Revalidate(c.MaxDistKm)
				c.log().WithFields(logrus.Fields{
					"file": weightsFile, "points": len(w.Valid),
				}).Info("loaded saved interpolation weights")
				return w, nil
			}
		}
	}

	mesh, err := ReadMesh(staticFile)
	if err != nil {
		return nil, err
	}
	c.log().WithFields(logrus.Fields{
		"file": staticFile, "cells": mesh.Len(),
	}).Info("building spatial index over mesh cell centers")
	index, err := NewSpatialIndex(mesh)
	if err != nil {
		return nil, err
	}
	w, err := BuildWeights(index, c.Grid, c.MaxDistKm)
	if err != nil {
		return nil, err
	}
	rows, cols := w.Shape()
	c.log().WithFields(logrus.Fields{
		"rows": rows, "cols": cols, "max_distance_km": c.MaxDistKm,
	}).Info("computed interpolation weights")
	if weightsFile != "" {
		if err := os.MkdirAll(filepath.Dir(weightsFile), os.ModePerm); err != nil {
			return nil, fmt.Errorf("mpasgrid: creating weight directory: %v", err)
		}
		if err := w.Write(weightsFile); err != nil {
			return nil, err
		}
		c.log().WithField("file", weightsFile).Info("saved interpolation weights")
	}
	return w, nil
}

// ConvertFile regrids every cell-based variable in inputFile using w and
// writes the results to outputFile. Variables without a mesh-cell axis
// are passed over silently; variables whose cell axis does not match the
// mesh the weights were built from are skipped with a warning rather
// than aborting the file.
func (c *Converter) ConvertFile(ctx context.Context, inputFile, outputFile string, w *Weights) error {
	f, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("mpasgrid: opening input file: %v", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("mpasgrid: input file %s: %v", inputFile, err)
	}
	ff, err := cdf.Open(f)
	if err != nil {
		return fmt.Errorf("mpasgrid: reading input file %s: %v", inputFile, err)
	}

	var vars []GriddedVar
	for _, name := range ff.Header.Variables() {
		dims := ff.Header.Dimensions(name)
		if _, ok := Classify(name, dims); !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := readField(ff, fi.Size(), name)
		if err != nil {
			return err
		}
		cellAxis := 0
		for i, d := range dims {
			if d == cellDim {
				cellAxis = i
			}
		}
		gridded, err := ApplyParallel(ctx, w, moveAxisLast(data, cellAxis), c.NumProcessors)
		if err != nil {
			var mismatch ShapeMismatchError
			if errors.As(err, &mismatch) {
				c.log().WithFields(logrus.Fields{
					"variable": name, "cells": mismatch.Have, "mesh": mismatch.Want,
				}).Warn("variable does not match the indexed mesh; skipping")
				continue
			}
			return err
		}
		outDims := make([]string, 0, len(dims)+1)
		for i, d := range dims {
			if i == cellAxis {
				continue
			}
			if d == timeDim {
				d = "time"
			}
			outDims = append(outDims, d)
		}
		outDims = append(outDims, "lat", "lon")
		vars = append(vars, GriddedVar{
			Name:        name,
			Description: attrString(ff.Header, name, "long_name"),
			Units:       attrString(ff.Header, name, "units"),
			Dims:        outDims,
			Data:        gridded,
		})
		c.log().WithFields(logrus.Fields{
			"variable": name, "shape": gridded.Shape,
		}).Debug("regridded variable")
	}
	if len(vars) == 0 {
		c.log().WithField("file", inputFile).Warn("input holds no regriddable variables")
	}
	if err := WriteGridded(outputFile, filepath.Base(inputFile), c.Grid, c.MaxDistKm, vars); err != nil {
		return err
	}
	c.log().WithFields(logrus.Fields{
		"input": inputFile, "output": outputFile, "variables": len(vars),
	}).Info("converted file")
	return nil
}

// FindDiagFiles returns the MPAS output files in runDir, sorted by name
// within each stream type (diagnostics, then history, then full output).
func FindDiagFiles(runDir string) ([]string, error) {
	var files []string
	for _, pattern := range diagFilePatterns {
		matches, err := filepath.Glob(filepath.Join(runDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("mpasgrid: searching for output files: %v", err)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

// ConvertAll regrids every MPAS output file in runDir, reusing saved
// weights from runDir/interpolation_weights when they match the target
// grid and skipping outputs that are already newer than their inputs.
// force rebuilds the weights and reconverts everything. A file that
// fails does not stop the others; an error is returned only if no file
// could be converted.
func (c *Converter) ConvertAll(ctx context.Context, runDir, staticFile string, force bool) error {
	files, err := FindDiagFiles(runDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("mpasgrid: no MPAS output files found in %s", runDir)
	}
	w, err := c.Weights(staticFile, filepath.Join(runDir, "interpolation_weights", "weights.nc"), force)
	if err != nil {
		return err
	}
	outDir := filepath.Join(runDir, "regular_grid")
	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		return fmt.Errorf("mpasgrid: creating output directory: %v", err)
	}

	var converted, skipped, failed int
	for _, input := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		output := filepath.Join(outDir, "regular_"+filepath.Base(input))
		if !force && upToDate(input, output) {
			c.log().WithField("file", output).Debug("output is up to date; skipping")
			skipped++
			continue
		}
		if err := c.ConvertFile(ctx, input, output, w); err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.log().WithField("file", input).Errorf("conversion failed: %v", err)
			failed++
			continue
		}
		converted++
	}
	c.log().WithFields(logrus.Fields{
		"converted": converted, "skipped": skipped, "failed": failed,
	}).Info("finished converting run directory")
	if converted == 0 && failed > 0 {
		return fmt.Errorf("mpasgrid: all %d file conversions failed", failed)
	}
	return nil
}

// upToDate reports whether output exists and is newer than input.
func upToDate(input, output string) bool {
	in, err := os.Stat(input)
	if err != nil {
		return false
	}
	out, err := os.Stat(output)
	if err != nil {
		return false
	}
	return out.ModTime().After(in.ModTime())
}

// moveAxisLast returns a copy of a with the given axis moved to the last
// position and the relative order of the other axes preserved. MPAS
// stores fields as (Time, nCells, nVertLevels), but interpolation wants
// the cell axis last. If the axis is already last, a is returned as is.
func moveAxisLast(a *sparse.DenseArray, axis int) *sparse.DenseArray {
	if axis == len(a.Shape)-1 {
		return a
	}
	shape := make([]int, 0, len(a.Shape))
	for i, n := range a.Shape {
		if i != axis {
			shape = append(shape, n)
		}
	}
	shape = append(shape, a.Shape[axis])
	out := sparse.ZerosDense(shape...)
	idx := make([]int, len(shape))
	for i, v := range a.Elements {
		src := a.IndexNd(i)
		k := 0
		for j, x := range src {
			if j != axis {
				idx[k] = x
				k++
			}
		}
		idx[k] = src[axis]
		out.Set(v, idx...)
	}
	return out
}

// attrString returns the named text attribute of variable v, or "".
func attrString(h *cdf.Header, v, name string) string {
	if s, ok := h.GetAttribute(v, name).(string); ok {
		return s
	}
	return ""
}
