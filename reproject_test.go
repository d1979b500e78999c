/*
Copyright © 2020 the GridOps authors.
This file is part of GridOps.

GridOps is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GridOps is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GridOps.  If not, see <http://www.gnu.org/licenses/>.
*/

package gridops

import (
	"math"
	"testing"

	"github.com/ctessum/geom/proj"
)

// testLCCProj is a Lambert conformal conic projection centered on the
// test grid.
const testLCCProj = "+proj=lcc +lat_1=0.25 +lat_2=1.25 +lat_0=0.75 +lon_0=1 +x_0=0 +y_0=0 +a=6370997.000000 +b=6370997.000000 +to_meter=1"

func TestReproject(t *testing.T) {
	r := newTestRaster(t, 2)

	// A finer grid strictly inside the source raster, in the same
	// spatial reference. Band t2m is linear in position, so bilinear
	// resampling must reproduce it exactly at every target center.
	grid := NewGrid("fine", 6, 4, 0.25, 0.25, 0.25, 0.25, r.SR)
	grid.Proj4 = r.Proj4
	out, err := Reproject(r, grid)
	if err != nil {
		t.Fatal(err)
	}
	if out.Nx != 6 || out.Ny != 4 {
		t.Fatalf("output size %d x %d; want 6 x 4", out.Nx, out.Ny)
	}
	if out.X0 != 0.25 || out.Y0 != 0.25 || out.Dx != 0.25 || out.Dy != 0.25 {
		t.Errorf("output geometry (%g, %g, %g, %g)", out.X0, out.Y0, out.Dx, out.Dy)
	}
	if !sameTimes(out.Times, r.Times) {
		t.Errorf("output times: %v", out.Times)
	}
	if out.Proj4 != r.Proj4 {
		t.Errorf("output Proj4: %s", out.Proj4)
	}

	b, err := out.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	if b.Units != "K" || b.Description != "2 metre temperature" {
		t.Errorf("band metadata lost: %s; %s", b.Description, b.Units)
	}
	// t2m at position (x, y) is 264.5 + 2x + 20y + it.
	for it := 0; it < 2; it++ {
		for iy := 0; iy < out.Ny; iy++ {
			for ix := 0; ix < out.Nx; ix++ {
				c := out.CellCenter(iy, ix)
				want := 264.5 + 2*c.X + 20*c.Y + float64(it)
				if v := b.Data.Get(it, iy, ix); different(v, want, tolerance) {
					t.Errorf("cell (%d, %d, %d): %g; want %g", it, iy, ix, v, want)
				}
			}
		}
	}
}

func TestReprojectMissing(t *testing.T) {
	r := newTestRaster(t, 1)
	tp, err := r.Band("tp")
	if err != nil {
		t.Fatal(err)
	}
	tp.Data.Set(math.NaN(), 0, 1, 1)

	grid := NewGrid("fine", 6, 4, 0.25, 0.25, 0.25, 0.25, r.SR)
	out, err := Reproject(r, grid)
	if err != nil {
		t.Fatal(err)
	}
	b, err := out.Band("tp")
	if err != nil {
		t.Fatal(err)
	}
	// Target columns 0-3 interpolate from source column 1 and become
	// missing; columns 4-5 only use source columns 2-3.
	for iy := 0; iy < out.Ny; iy++ {
		for ix := 0; ix < out.Nx; ix++ {
			v := b.Data.Get(0, iy, ix)
			if ix <= 3 && !math.IsNaN(v) {
				t.Errorf("cell (%d, %d): %g; want NaN", iy, ix, v)
			}
			if ix > 3 && math.IsNaN(v) {
				t.Errorf("cell (%d, %d): NaN; want a value", iy, ix)
			}
		}
	}

	// The other band is unaffected.
	t2m, err := out.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range t2m.Data.Elements {
		if math.IsNaN(v) {
			t.Error("missing value leaked between bands")
			break
		}
	}
}

func TestReprojectOutside(t *testing.T) {
	r := newTestRaster(t, 1)

	// A single-row grid sticking out both sides of the source raster.
	grid := NewGrid("wide", 7, 1, 0.5, 0.5, -0.875, 0.375, r.SR)
	out, err := Reproject(r, grid)
	if err != nil {
		t.Fatal(err)
	}
	b, err := out.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	wantMissing := []bool{true, true, false, false, false, true, true}
	for ix, want := range wantMissing {
		if got := math.IsNaN(b.Data.Get(0, 0, ix)); got != want {
			t.Errorf("column %d: missing=%v; want %v", ix, got, want)
		}
	}
}

func TestReprojectLCC(t *testing.T) {
	r := newTestRaster(t, 1)
	lcc, err := proj.Parse(testLCCProj)
	if err != nil {
		t.Fatal(err)
	}
	grid, err := TemplateGrid("lcc", r, lcc, 25000, 25000)
	if err != nil {
		t.Fatal(err)
	}
	grid.Proj4 = testLCCProj

	out, err := Reproject(r, grid)
	if err != nil {
		t.Fatal(err)
	}
	if out.Proj4 != testLCCProj {
		t.Errorf("output Proj4: %s", out.Proj4)
	}
	if !out.SR.Equal(lcc, 10) {
		t.Error("output spatial reference is not the grid's")
	}

	// Interpolated values are convex combinations of source values, so
	// every defined output cell must lie within the source value range,
	// and most of the grid must be defined since it was derived from
	// the raster's own extent.
	b, err := out.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	srcMin, srcMax := 270.0, 270.0+3+20
	var defined int
	for _, v := range b.Data.Elements {
		if math.IsNaN(v) {
			continue
		}
		defined++
		if v < srcMin-tolerance || v > srcMax+tolerance {
			t.Errorf("interpolated value %g outside source range [%g, %g]", v, srcMin, srcMax)
		}
	}
	if defined < len(b.Data.Elements)/2 {
		t.Errorf("only %d of %d interpolated cells are defined", defined, len(b.Data.Elements))
	}
}

func TestResampleBilinear(t *testing.T) {
	// One 2x2 source plane with values 1, 2 over 3, 4.
	src := []float64{1, 2, 3, 4}
	fx := []float64{0.5, 0, 1, 0.5, -0.5, 1.5, math.NaN(), 0}
	fy := []float64{0.5, 0, 1, 0, 0.5, 0.5, 0, math.NaN()}
	dst := make([]float64, len(fx))
	resampleBilinear(dst, src, 2, 2, fy, fx)

	want := []float64{2.5, 1, 4, 1.5, math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	for i, w := range want {
		if math.IsNaN(w) {
			if !math.IsNaN(dst[i]) {
				t.Errorf("point %d: %g; want NaN", i, dst[i])
			}
			continue
		}
		if different(dst[i], w, tolerance) {
			t.Errorf("point %d: %g; want %g", i, dst[i], w)
		}
	}

	// A missing source value poisons every cell it has weight in.
	src[3] = math.NaN()
	resampleBilinear(dst, src, 2, 2, fy, fx)
	if !math.IsNaN(dst[0]) {
		t.Errorf("interpolation over a missing source cell: %g; want NaN", dst[0])
	}
	if !math.IsNaN(dst[2]) {
		t.Errorf("collapse onto a missing source cell: %g; want NaN", dst[2])
	}
	if math.IsNaN(dst[1]) {
		t.Error("cell with no missing neighbors became missing")
	}
}
