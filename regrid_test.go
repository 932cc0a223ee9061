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
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

// denseTestWeights builds weights from a mesh of cells at 1° spacing
// covering the 5×5 target grid, so every grid point is inside coverage.
func denseTestWeights(t *testing.T) *Weights {
	t.Helper()
	var lat, lon []float64
	for la := -3.; la <= 3; la++ {
		for lo := -3.; lo <= 3; lo++ {
			lat = append(lat, la)
			lon = append(lon, lo)
		}
	}
	grid := GridSpec{LatMin: -2.5, LatMax: 2.5, LonMin: -2.5, LonMax: 2.5, Resolution: 1}
	w, err := BuildWeights(newTestIndex(t, lat, lon), grid, 2000)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestApplyShapes(t *testing.T) {
	w := denseTestWeights(t)
	n := w.MeshSize

	field2d := sparse.ZerosDense(2, n)
	out, err := Apply(w, field2d)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{2, 5, 5}; !equalInts(out.Shape, want) {
		t.Errorf("(time, cells) output shape %v, want %v", out.Shape, want)
	}

	field3d := sparse.ZerosDense(2, 3, n)
	out, err = Apply(w, field3d)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{2, 3, 5, 5}; !equalInts(out.Shape, want) {
		t.Errorf("(time, level, cells) output shape %v, want %v", out.Shape, want)
	}
}

func TestApplyConstantField(t *testing.T) {
	w := denseTestWeights(t)
	field := sparse.ZerosDense(2, w.MeshSize)
	for i := range field.Elements {
		field.Elements[i] = 7.5
	}
	out, err := Apply(w, field)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Elements {
		if different(v, 7.5, 1e-12) {
			t.Errorf("element %d: %g, want 7.5", i, v)
		}
	}
}

func TestApplyShapeMismatch(t *testing.T) {
	w := denseTestWeights(t)
	_, err := Apply(w, sparse.ZerosDense(2, w.MeshSize+1))
	var mismatch ShapeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error %v, want ShapeMismatchError", err)
	}
	if mismatch.Have != w.MeshSize+1 || mismatch.Want != w.MeshSize {
		t.Errorf("error details %+v do not name the mismatched sizes", mismatch)
	}
	if _, err := Apply(w, sparse.ZerosDense(w.MeshSize, 2)); err == nil {
		t.Error("expected error when the cell axis is not last")
	}
}

func TestApplyDoesNotMutate(t *testing.T) {
	w := denseTestWeights(t)
	field := sparse.ZerosDense(2, w.MeshSize)
	for i := range field.Elements {
		field.Elements[i] = math.Sin(float64(i))
	}
	orig := append([]float64{}, field.Elements...)
	if _, err := Apply(w, field); err != nil {
		t.Fatal(err)
	}
	for i := range orig {
		if field.Elements[i] != orig[i] {
			t.Fatalf("input element %d changed from %g to %g", i, orig[i], field.Elements[i])
		}
	}
}

func TestApplyParallelMatchesSerial(t *testing.T) {
	w := denseTestWeights(t)
	field := sparse.ZerosDense(4, 3, w.MeshSize)
	for i := range field.Elements {
		field.Elements[i] = math.Sin(float64(i)) * 100
	}
	serial, err := Apply(w, field)
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := ApplyParallel(context.Background(), w, field, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := range serial.Elements {
		a, b := serial.Elements[i], parallel.Elements[i]
		if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
			t.Fatalf("element %d: serial %g, parallel %g", i, a, b)
		}
	}
}

func TestApplyParallelCanceled(t *testing.T) {
	w := denseTestWeights(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ApplyParallel(ctx, w, sparse.ZerosDense(2, w.MeshSize), 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v, want context.Canceled", err)
	}
}

func TestApplyCoverageMask(t *testing.T) {
	// A tiny mesh near the origin under an 80×80 continental-scale grid:
	// only points near the origin are inside the 500 km coverage radius.
	s := newTestIndex(t, []float64{0, 0.1, 0}, []float64{0, 0, 0.1})
	grid := GridSpec{LatMin: -40, LatMax: 40, LonMin: -40, LonMax: 40, Resolution: 1}
	w, err := BuildWeights(s, grid, 500)
	if err != nil {
		t.Fatal(err)
	}
	field := sparse.ZerosDense(1, 3)
	for i := range field.Elements {
		field.Elements[i] = 42
	}
	out, err := Apply(w, field)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{1, 80, 80}; !equalInts(out.Shape, want) {
		t.Fatalf("output shape %v, want %v", out.Shape, want)
	}
	center := out.Get(0, 40, 40) // grid point (0°, 0°)
	if different(center, 42, 1e-12) {
		t.Errorf("in-coverage value %g, want 42", center)
	}
	if corner := out.Get(0, 0, 0); !math.IsNaN(corner) {
		t.Errorf("out-of-coverage value %g, want NaN", corner)
	}
	var valid int
	for _, ok := range w.Valid {
		if ok {
			valid++
		}
	}
	if valid == 0 || valid == len(w.Valid) {
		t.Errorf("%d of %d points valid; expected a partial mask", valid, len(w.Valid))
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
