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
	"math"
	"runtime"
	"sync"

	"github.com/ctessum/sparse"
)

// Apply interpolates field onto the grid w was built for. The field's
// last axis must index mesh cells in the order the index was built from;
// any leading axes (time, vertical level) are preserved, so a (T, cells)
// field becomes (T, rows, cols) and a (T, L, cells) field becomes
// (T, L, rows, cols). Grid points outside mesh coverage hold NaN. Apply
// is a pure function: it never mutates its inputs.
func Apply(w *Weights, field *sparse.DenseArray) (*sparse.DenseArray, error) {
	return ApplyParallel(context.Background(), w, field, 1)
}

// ApplyParallel is Apply distributed over nprocs worker goroutines, one
// 2-D slice at a time; nprocs < 1 means one worker per available core.
// The weights do not depend on time or level, so every slice shares the
// same read-only artifact and writes a disjoint region of the output,
// with no locking involved. Cancellation is checked once per slice:
// slices complete in milliseconds to seconds, so mid-slice cancellation
// is not worth the bookkeeping.
func ApplyParallel(ctx context.Context, w *Weights, field *sparse.DenseArray, nprocs int) (*sparse.DenseArray, error) {
	if len(field.Shape) == 0 || field.Shape[len(field.Shape)-1] != w.MeshSize {
		var have int
		if len(field.Shape) > 0 {
			have = field.Shape[len(field.Shape)-1]
		}
		return nil, ShapeMismatchError{Have: have, Want: w.MeshSize}
	}
	if nprocs < 1 {
		nprocs = runtime.GOMAXPROCS(-1)
	}
	rows, cols := w.Shape()
	nslices := 1
	for _, n := range field.Shape[:len(field.Shape)-1] {
		nslices *= n
	}
	outShape := append(append([]int{}, field.Shape[:len(field.Shape)-1]...), rows, cols)
	out := sparse.ZerosDense(outShape...)

	slices := make(chan int)
	var wg sync.WaitGroup
	for p := 0; p < nprocs; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range slices {
				applySlice(w,
					field.Elements[s*w.MeshSize:(s+1)*w.MeshSize],
					out.Elements[s*rows*cols:(s+1)*rows*cols])
			}
		}()
	}
	var err error
	for s := 0; s < nslices; s++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case slices <- s:
		}
		if err != nil {
			break
		}
	}
	close(slices)
	wg.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applySlice regrids one 2-D slice: gather the three neighbor values for
// each grid point, combine them with the normalized weights, and mask
// out-of-coverage points with NaN.
func applySlice(w *Weights, in, out []float64) {
	for i := range out {
		if !w.Valid[i] {
			out[i] = math.NaN()
			continue
		}
		var v float64
		for j := 0; j < idwNeighbors; j++ {
			v += in[w.Indices.Elements[i*idwNeighbors+j]] * w.W.Elements[i*idwNeighbors+j]
		}
		out[i] = v
	}
}
