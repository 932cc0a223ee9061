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
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
)

func quietConverter(t *testing.T, grid GridSpec, maxDistKm float64) *Converter {
	t.Helper()
	c, err := NewConverter(grid, maxDistKm)
	if err != nil {
		t.Fatal(err)
	}
	c.Log = logrus.New()
	c.Log.SetOutput(io.Discard)
	return c
}

// testMeshCoords returns cell centers at 1° spacing covering lat and lon
// -3° through 3°.
func testMeshCoords() (lat, lon []float64) {
	for la := -3.; la <= 3; la++ {
		for lo := -3.; lo <= 3; lo++ {
			lat = append(lat, la)
			lon = append(lon, lo)
		}
	}
	return lat, lon
}

// writeTestDiagFile writes an MPAS-style diagnostics file with nrec
// records along the unlimited Time dimension. t2m holds 280+t at every
// cell; theta holds 300+10*level at every cell.
func writeTestDiagFile(t *testing.T, filename string, ncells, nlev, nrec int) {
	t.Helper()
	h := cdf.NewHeader(
		[]string{"Time", "nCells", "nVertLevels"},
		[]int{0, ncells, nlev})
	h.AddVariable("t2m", []string{"Time", "nCells"}, []float64{0})
	h.AddAttribute("t2m", "long_name", "2-meter temperature")
	h.AddAttribute("t2m", "units", "K")
	h.AddVariable("theta", []string{"Time", "nCells", "nVertLevels"}, []float64{0})
	h.AddAttribute("theta", "units", "K")
	h.AddVariable("xtime", []string{"Time"}, []float64{0})
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		t.Fatal(errs[0])
	}
	ff, err := os.Create(filename)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}
	for rec := 0; rec < nrec; rec++ {
		t2m := make([]float64, ncells)
		for i := range t2m {
			t2m[i] = 280 + float64(rec)
		}
		if _, err := f.Writer("t2m", []int{rec, 0}, []int{rec + 1, ncells}).Write(t2m); err != nil {
			t.Fatal(err)
		}
		theta := make([]float64, ncells*nlev)
		for c := 0; c < ncells; c++ {
			for l := 0; l < nlev; l++ {
				theta[c*nlev+l] = 300 + 10*float64(l)
			}
		}
		if _, err := f.Writer("theta", []int{rec, 0, 0}, []int{rec + 1, ncells, nlev}).Write(theta); err != nil {
			t.Fatal(err)
		}
		if _, err := f.Writer("xtime", []int{rec}, []int{rec + 1}).Write([]float64{float64(rec)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		t.Fatal(err)
	}
	ff.Close()
}

var testGrid = GridSpec{LatMin: -2.5, LatMax: 2.5, LonMin: -2.5, LonMax: 2.5, Resolution: 1}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	lat, lon := testMeshCoords()
	static := filepath.Join(dir, "static.nc")
	writeTestMeshFile(t, static, lat, lon)
	input := filepath.Join(dir, "diag.2024-01-01_00.00.00.nc")
	writeTestDiagFile(t, input, len(lat), 2, 2)

	c := quietConverter(t, testGrid, 2000)
	w, err := c.Weights(static, "", false)
	if err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "regular_diag.nc")
	if err := c.ConvertFile(context.Background(), input, output, w); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	// t2m: (Time, nCells) in, (time, lat, lon) out.
	if want := []int{2, 5, 5}; !equalInts(ff.Header.Lengths("t2m"), want) {
		t.Fatalf("t2m lengths %v, want %v", ff.Header.Lengths("t2m"), want)
	}
	r := ff.Reader("t2m", []int{0, 0, 0}, []int{2, 5, 5})
	t2m := r.Zero(2 * 5 * 5).([]float64)
	if _, err := r.Read(t2m); err != nil {
		t.Fatal(err)
	}
	for i, v := range t2m {
		want := 280.
		if i >= 25 {
			want = 281
		}
		if different(v, want, 1e-9) {
			t.Fatalf("t2m element %d: %g, want %g", i, v, want)
		}
	}
	// theta: (Time, nCells, nVertLevels) in, (time, nVertLevels, lat,
	// lon) out, exercising the cell axis transpose.
	wantDims := []string{"time", "nVertLevels", "lat", "lon"}
	gotDims := ff.Header.Dimensions("theta")
	if len(gotDims) != len(wantDims) {
		t.Fatalf("theta dimensions %v, want %v", gotDims, wantDims)
	}
	for i := range wantDims {
		if gotDims[i] != wantDims[i] {
			t.Fatalf("theta dimensions %v, want %v", gotDims, wantDims)
		}
	}
	r = ff.Reader("theta", []int{0, 0, 0, 0}, []int{2, 2, 5, 5})
	theta := r.Zero(2 * 2 * 5 * 5).([]float64)
	if _, err := r.Read(theta); err != nil {
		t.Fatal(err)
	}
	for i, v := range theta {
		level := (i / 25) % 2
		want := 300 + 10*float64(level)
		if different(v, want, 1e-9) {
			t.Fatalf("theta element %d: %g, want %g", i, v, want)
		}
	}
	// Variables without a mesh-cell axis stay out of the output.
	if ff.Header.Lengths("xtime") != nil {
		t.Error("xtime should not be in the output")
	}
	if d, _ := ff.Header.GetAttribute("t2m", "description").(string); d != "2-meter temperature" {
		t.Errorf("t2m description %q", d)
	}
	if s, _ := ff.Header.GetAttribute("", "source_file").(string); s != filepath.Base(input) {
		t.Errorf("source_file attribute %q, want %q", s, filepath.Base(input))
	}
}

func TestConvertFileMasksOutOfCoverage(t *testing.T) {
	dir := t.TempDir()
	lat, lon := testMeshCoords()
	static := filepath.Join(dir, "static.nc")
	writeTestMeshFile(t, static, lat, lon)
	input := filepath.Join(dir, "diag.nc")
	writeTestDiagFile(t, input, len(lat), 1, 1)

	// A grid much wider than the mesh with a tight coverage radius.
	grid := GridSpec{LatMin: -20, LatMax: 20, LonMin: -20, LonMax: 20, Resolution: 2}
	c := quietConverter(t, grid, 200)
	w, err := c.Weights(static, "", false)
	if err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "out.nc")
	if err := c.ConvertFile(context.Background(), input, output, w); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	n := 20 * 20
	r := ff.Reader("t2m", []int{0, 0, 0}, []int{1, 20, 20})
	vals := r.Zero(n).([]float64)
	if _, err := r.Read(vals); err != nil {
		t.Fatal(err)
	}
	var masked, unmasked int
	for _, v := range vals {
		if math.IsNaN(v) {
			masked++
		} else {
			unmasked++
		}
	}
	if masked == 0 || unmasked == 0 {
		t.Errorf("%d masked and %d unmasked values; expected both", masked, unmasked)
	}
}

func TestConverterWeightsReuse(t *testing.T) {
	dir := t.TempDir()
	lat, lon := testMeshCoords()
	static := filepath.Join(dir, "static.nc")
	writeTestMeshFile(t, static, lat, lon)
	weightsFile := filepath.Join(dir, "interpolation_weights", "weights.nc")

	c := quietConverter(t, testGrid, 2000)
	w1, err := c.Weights(static, weightsFile, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(weightsFile); err != nil {
		t.Fatalf("weights were not saved: %v", err)
	}
	// The second call must load the saved artifact, including under a
	// changed distance threshold.
	c2 := quietConverter(t, testGrid, 100)
	w2, err := c2.Weights(static, weightsFile, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := range w1.W.Elements {
		if w1.W.Elements[i] != w2.W.Elements[i] {
			t.Fatal("reloaded weights differ from the originals")
		}
	}
	if w2.MaxDistKm != 100 {
		t.Errorf("reloaded threshold %g, want 100", w2.MaxDistKm)
	}
	// A different grid must trigger a rebuild rather than reuse.
	other := testGrid
	other.Resolution = 0.5
	c3 := quietConverter(t, other, 2000)
	w3, err := c3.Weights(static, weightsFile, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w3.CheckGrid(other); err != nil {
		t.Errorf("rebuilt weights have the wrong grid: %v", err)
	}
}

func TestFindDiagFiles(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"history.2024-01-01_00.00.00.nc",
		"diag.2024-01-02_00.00.00.nc",
		"diag.2024-01-01_00.00.00.nc",
		"output.2024-01-01_00.00.00.nc",
		"static.nc",
		"notes.txt",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := FindDiagFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"diag.2024-01-01_00.00.00.nc",
		"diag.2024-01-02_00.00.00.nc",
		"history.2024-01-01_00.00.00.nc",
		"output.2024-01-01_00.00.00.nc",
	}
	if len(files) != len(want) {
		t.Fatalf("found %d files, want %d: %v", len(files), len(want), files)
	}
	for i, f := range files {
		if filepath.Base(f) != want[i] {
			t.Errorf("file %d: %s, want %s", i, filepath.Base(f), want[i])
		}
	}
}

func TestConvertAll(t *testing.T) {
	dir := t.TempDir()
	lat, lon := testMeshCoords()
	static := filepath.Join(dir, "static.nc")
	writeTestMeshFile(t, static, lat, lon)
	inputs := []string{
		"diag.2024-01-01_00.00.00.nc",
		"diag.2024-01-01_06.00.00.nc",
	}
	for _, n := range inputs {
		writeTestDiagFile(t, filepath.Join(dir, n), len(lat), 2, 1)
	}

	c := quietConverter(t, testGrid, 2000)
	if err := c.ConvertAll(context.Background(), dir, static, false); err != nil {
		t.Fatal(err)
	}
	for _, n := range inputs {
		out := filepath.Join(dir, "regular_grid", "regular_"+n)
		if _, err := os.Stat(out); err != nil {
			t.Errorf("missing output %s: %v", out, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "interpolation_weights", "weights.nc")); err != nil {
		t.Errorf("weights were not saved: %v", err)
	}
	// Rerunning with everything up to date is a no-op, not an error.
	if err := c.ConvertAll(context.Background(), dir, static, false); err != nil {
		t.Fatal(err)
	}
}

func TestConvertAllEmptyDir(t *testing.T) {
	c := quietConverter(t, testGrid, 2000)
	if err := c.ConvertAll(context.Background(), t.TempDir(), "static.nc", false); err == nil {
		t.Error("expected error for a directory without MPAS output files")
	}
}

func TestConvertAllCanceled(t *testing.T) {
	dir := t.TempDir()
	lat, lon := testMeshCoords()
	static := filepath.Join(dir, "static.nc")
	writeTestMeshFile(t, static, lat, lon)
	writeTestDiagFile(t, filepath.Join(dir, "diag.2024-01-01_00.00.00.nc"), len(lat), 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := quietConverter(t, testGrid, 2000)
	if err := c.ConvertAll(ctx, dir, static, false); err == nil {
		t.Error("expected error for a canceled context")
	}
}
