/*
Copyright © 2019 the GridOps authors.
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
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// classicVar describes a variable for writeClassicFile.
type classicVar struct {
	name  string
	dims  []string
	data  interface{} // []float64, []float32, or []int32, flattened
	attrs map[string]interface{}
}

// writeClassicFile writes a small classic-format NetCDF file using the
// low-level cdf package, imitating data files produced by other tools.
func writeClassicFile(t *testing.T, filename string, dims []string, lens []int, vars []classicVar) {
	h := cdf.NewHeader(dims, lens)
	for _, v := range vars {
		switch v.data.(type) {
		case []float64:
			h.AddVariable(v.name, v.dims, []float64{0})
		case []float32:
			h.AddVariable(v.name, v.dims, []float32{0})
		case []int32:
			h.AddVariable(v.name, v.dims, []int32{0})
		default:
			t.Fatalf("unsupported test data type %T", v.data)
		}
		for key, a := range v.attrs {
			h.AddAttribute(v.name, key, a)
		}
	}
	h.Define()
	w, err := os.Create(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vars {
		end := f.Header.Lengths(v.name)
		start := make([]int, len(end))
		wr := f.Writer(v.name, start, end)
		var werr error
		switch d := v.data.(type) {
		case []float64:
			_, werr = wr.Write(d)
		case []float32:
			_, werr = wr.Write(d)
		case []int32:
			_, werr = wr.Write(d)
		}
		if werr != nil {
			t.Fatal(werr)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		t.Fatal(err)
	}
}

func TestReadNetCDFPacked(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridops_read")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	// An ERA5-style file: a packed integer variable on descending
	// latitudes, with scale/offset unpacking and a fill value.
	raw := make([]int32, 2*3*4)
	for i := range raw {
		raw[i] = int32(i) * 100
	}
	raw[5] = -9999
	filename := filepath.Join(dir, "t2m_era5.nc")
	writeClassicFile(t, filename,
		[]string{"time", "latitude", "longitude"}, []int{2, 3, 4},
		[]classicVar{
			{
				name: "time", dims: []string{"time"},
				data:  []float64{0, 1},
				attrs: map[string]interface{}{"units": "hours since 2020-01-01"},
			},
			{
				name: "latitude", dims: []string{"latitude"},
				data: []float64{1.25, 0.75, 0.25},
			},
			{
				name: "longitude", dims: []string{"longitude"},
				data: []float64{0.25, 0.75, 1.25, 1.75},
			},
			{
				name: "t2m", dims: []string{"time", "latitude", "longitude"},
				data: raw,
				attrs: map[string]interface{}{
					"scale_factor": []float32{0.01},
					"add_offset":   []float32{270},
					"_FillValue":   []int32{-9999},
					"units":        "K",
					"long_name":    "2 metre temperature",
				},
			},
		})

	r, err := ReadNetCDF(filename)
	if err != nil {
		t.Fatal(err)
	}
	if r.Nx != 4 || r.Ny != 3 {
		t.Fatalf("size %d x %d; want 4 x 3", r.Nx, r.Ny)
	}
	if r.X0 != 0 || r.Y0 != 0 || r.Dx != 0.5 || r.Dy != 0.5 {
		t.Errorf("geometry (%g, %g, %g, %g)", r.X0, r.Y0, r.Dx, r.Dy)
	}
	if r.Proj4 != LongLat {
		t.Errorf("Proj4: %s", r.Proj4)
	}
	if !sameTimes(r.Times, testTimes(2)) {
		t.Errorf("times: %v", r.Times)
	}

	// The file holds a single gridded variable, so the band is named
	// after the file.
	name := filepath.Base(filename)
	b, err := r.Band(name)
	if err != nil {
		t.Fatal(err)
	}
	if b.Units != "K" || b.Description != "2 metre temperature" {
		t.Errorf("band metadata: %q; %q", b.Description, b.Units)
	}

	// Unpacked value = raw*0.01 + 270, with the stored rows flipped so
	// that row 0 is the southern edge, and raw index 5 is the fill.
	want := sparse.ZerosDense(2, 3, 4)
	for it := 0; it < 2; it++ {
		for iy := 0; iy < 3; iy++ {
			for ix := 0; ix < 4; ix++ {
				stored := (it*3+(2-iy))*4 + ix
				if stored == 5 {
					want.Set(math.NaN(), it, iy, ix)
					continue
				}
				want.Set(float64(stored)+270, it, iy, ix)
			}
		}
	}
	arrayCompare(b.Data, want, tolerance, "unpacked t2m", t)

	// Asking for the variable by name keeps the variable's own name.
	named, err := ReadNetCDF(filename, "t2m")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := named.Band("t2m"); err != nil {
		t.Errorf("explicit variable name: %v", err)
	}
}

func TestReadNetCDFErrors(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridops_read")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	coordVars := func(lon []float64) []classicVar {
		return []classicVar{
			{name: "lat", dims: []string{"lat"}, data: []float64{0.25, 0.75}},
			{name: "lon", dims: []string{"lon"}, data: lon},
			{name: "v", dims: []string{"lat", "lon"},
				data: make([]float32, 2*len(lon))},
		}
	}

	uneven := filepath.Join(dir, "uneven.nc")
	writeClassicFile(t, uneven, []string{"lat", "lon"}, []int{2, 3},
		coordVars([]float64{0, 1, 3}))
	if _, err := ReadNetCDF(uneven); err == nil ||
		!strings.Contains(err.Error(), "evenly spaced") {
		t.Errorf("uneven spacing: %v", err)
	}

	descending := filepath.Join(dir, "descending.nc")
	writeClassicFile(t, descending, []string{"lat", "lon"}, []int{2, 3},
		coordVars([]float64{3, 2, 1}))
	if _, err := ReadNetCDF(descending); err == nil ||
		!strings.Contains(err.Error(), "must increase") {
		t.Errorf("descending longitude: %v", err)
	}

	nocoord := filepath.Join(dir, "nocoord.nc")
	writeClassicFile(t, nocoord, []string{"a", "b"}, []int{2, 2},
		[]classicVar{{name: "v", dims: []string{"a", "b"}, data: make([]float32, 4)}})
	if _, err := ReadNetCDF(nocoord); err == nil ||
		!strings.Contains(err.Error(), "no coordinate variable") {
		t.Errorf("missing coordinates: %v", err)
	}

	novar := filepath.Join(dir, "novar.nc")
	writeClassicFile(t, novar, []string{"lat", "lon"}, []int{2, 3},
		[]classicVar{
			{name: "lat", dims: []string{"lat"}, data: []float64{0.25, 0.75}},
			{name: "lon", dims: []string{"lon"}, data: []float64{0, 1, 2}},
		})
	if _, err := ReadNetCDF(novar); err == nil ||
		!strings.Contains(err.Error(), "no variables") {
		t.Errorf("no gridded variables: %v", err)
	}

	if _, err := ReadNetCDF(filepath.Join(dir, "missing.nc")); err == nil {
		t.Error("missing file: want error")
	}
}

func TestReadNetCDFNoTimeCoord(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridops_read")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	// A file without a time coordinate loads as a single placeholder
	// time step that SetTimes can replace.
	filename := filepath.Join(dir, "static.nc")
	writeClassicFile(t, filename, []string{"lat", "lon"}, []int{2, 3},
		[]classicVar{
			{name: "lat", dims: []string{"lat"}, data: []float64{0.25, 0.75}},
			{name: "lon", dims: []string{"lon"}, data: []float64{0, 1, 2}},
			{name: "elev", dims: []string{"lat", "lon"},
				data: []float32{1, 2, 3, 4, 5, 6}},
		})
	r, err := ReadNetCDF(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Times) != 1 {
		t.Fatalf("got %d time steps; want 1", len(r.Times))
	}
	if err := r.SetTimes([]time.Time{time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatal(err)
	}
	b, err := r.Band(filepath.Base(filename))
	if err != nil {
		t.Fatal(err)
	}
	want := sparse.ZerosDense(1, 2, 3)
	copy(want.Elements, []float64{1, 2, 3, 4, 5, 6})
	arrayCompare(b.Data, want, tolerance, "static variable", t)
}

func TestReadSeries(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridops_read")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	day1 := newTestRaster(t, 2)
	day2 := newTestRaster(t, 2)
	if err := day2.SetTimes(HourlyTimes(time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC), 2)); err != nil {
		t.Fatal(err)
	}
	for _, name := range day2.BandNames() {
		b, err := day2.Band(name)
		if err != nil {
			t.Fatal(err)
		}
		for i := range b.Data.Elements {
			b.Data.Elements[i] += 100
		}
	}
	writeTestRaster(t, dir, day1, "era5_20200101.nc")
	writeTestRaster(t, dir, day2, "era5_20200102.nc")

	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, time.January, 3, 0, 0, 0, 0, time.UTC)
	r, err := ReadSeries(filepath.Join(dir, "era5_[DATE].nc"), "20060102",
		start, end, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Times) != 4 {
		t.Fatalf("got %d time steps; want 4", len(r.Times))
	}
	wantTimes := append(append([]time.Time{}, day1.Times...), day2.Times...)
	if !sameTimes(r.Times, wantTimes) {
		t.Errorf("times: %v", r.Times)
	}

	tp, err := r.Band("tp")
	if err != nil {
		t.Fatal(err)
	}
	if v := tp.Data.Get(0, 0, 0); different(v, 0, tolerance) && v != 0 {
		t.Errorf("first file value: %g; want 0", v)
	}
	if v := tp.Data.Get(2, 0, 0); different(v, 100, tolerance) {
		t.Errorf("second file value: %g; want 100", v)
	}
	if v := tp.Data.Get(3, 2, 3); different(v, 123, tolerance) {
		t.Errorf("last value: %g; want 123", v)
	}

	// Restricting the variables restricts the bands.
	only, err := ReadSeries(filepath.Join(dir, "era5_[DATE].nc"), "20060102",
		start, end, 24*time.Hour, "tp")
	if err != nil {
		t.Fatal(err)
	}
	if names := only.BandNames(); len(names) != 1 || names[0] != "tp" {
		t.Errorf("restricted band names: %v", names)
	}
}

func TestReadSeriesErrors(t *testing.T) {
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	if _, err := ReadSeries("x_[DATE].nc", "20060102", start, start.AddDate(0, 0, 1), 0); err == nil {
		t.Error("zero file interval: want error")
	}
	if _, err := ReadSeries("x_[DATE].nc", "20060102", start, start, 24*time.Hour); err == nil {
		t.Error("empty date range: want error")
	}
	if _, err := ReadSeries("x_[DATE].nc", "20060102", start, start.AddDate(0, 0, 1), 24*time.Hour); err == nil {
		t.Error("missing files: want error")
	}
}

func TestParseCFTime(t *testing.T) {
	tests := []struct {
		units string
		vals  []float64
		want  []time.Time
	}{
		{
			"hours since 1900-01-01 00:00:00.0",
			[]float64{0, 1.5},
			[]time.Time{
				time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(1900, 1, 1, 1, 30, 0, 0, time.UTC),
			},
		},
		{
			"days since 2020-01-01",
			[]float64{0, 0.5, 1},
			[]time.Time{
				time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC),
				time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			"seconds since 2020-01-01 06:00:00",
			[]float64{30},
			[]time.Time{time.Date(2020, 1, 1, 6, 0, 30, 0, time.UTC)},
		},
		{
			"minutes since 2020-01-01 00:00",
			[]float64{90},
			[]time.Time{time.Date(2020, 1, 1, 1, 30, 0, 0, time.UTC)},
		},
		{
			"hours since 2020-01-01T00:00:00Z",
			[]float64{24},
			[]time.Time{time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)},
		},
	}
	for _, test := range tests {
		have, err := parseCFTime(test.units, test.vals)
		if err != nil {
			t.Errorf("%q: %v", test.units, err)
			continue
		}
		if !sameTimes(have, test.want) {
			t.Errorf("%q: %v; want %v", test.units, have, test.want)
		}
	}

	for _, bad := range []string{
		"fortnights since 2020-01-01",
		"hours after 2020-01-01",
		"hours since yesterday",
		"hours",
	} {
		if _, err := parseCFTime(bad, []float64{0}); err == nil {
			t.Errorf("%q: want error", bad)
		}
	}
}

func TestCellSpacing(t *testing.T) {
	if d, err := cellSpacing([]float64{0.25, 0.75, 1.25}, "x"); err != nil || d != 0.5 {
		t.Errorf("ascending: %g, %v", d, err)
	}
	if d, err := cellSpacing([]float64{1.25, 0.75, 0.25}, "y"); err != nil || d != -0.5 {
		t.Errorf("descending: %g, %v", d, err)
	}
	if _, err := cellSpacing([]float64{0, 1, 3}, "x"); err == nil {
		t.Error("uneven spacing: want error")
	}
	if _, err := cellSpacing([]float64{1}, "x"); err == nil {
		t.Error("single value: want error")
	}
	if _, err := cellSpacing([]float64{1, 1, 1}, "x"); err == nil {
		t.Error("zero spacing: want error")
	}
}
