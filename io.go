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
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// rasterFill is stored in place of NaN in saved files. It is the NetCDF
// default fill value for floating-point data.
const rasterFill = 9.96921e+36

// rasterTimeUnits is the encoding of the time coordinate in saved files.
const rasterTimeUnits = "hours since 1900-01-01 00:00:00.0"

var rasterTimeEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Write saves the raster to w as a classic-format NetCDF file that can
// be read back with ReadRaster or ReadNetCDF. Each band becomes a
// float32 variable on dimensions (time, y, x) with description and
// units attributes, and NaN is stored as the standard fill value.
// Coordinate variables hold the timestamps and cell-center locations,
// and global attributes record the grid geometry and the spatial
// reference definition.
func (r *Raster) Write(w *os.File) error {
	if len(r.order) == 0 {
		return fmt.Errorf("gridops: writing raster to %s: raster has no bands", w.Name())
	}
	nt, ny, nx := len(r.Times), r.Ny, r.Nx

	h := cdf.NewHeader([]string{"time", "y", "x"}, []int{nt, ny, nx})
	h.AddAttribute("", "x0", []float64{r.X0})
	h.AddAttribute("", "y0", []float64{r.Y0})
	h.AddAttribute("", "dx", []float64{r.Dx})
	h.AddAttribute("", "dy", []float64{r.Dy})
	h.AddAttribute("", "nx", []int32{int32(nx)})
	h.AddAttribute("", "ny", []int32{int32(ny)})
	if r.Proj4 != "" {
		h.AddAttribute("", "proj4", r.Proj4)
	}
	h.AddAttribute("", "data_version", DataVersion)

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", rasterTimeUnits)
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddAttribute("y", "description", "y coordinate of cell centers")
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddAttribute("x", "description", "x coordinate of cell centers")

	for _, name := range r.order {
		b := r.bands[name]
		h.AddVariable(name, []string{"time", "y", "x"}, []float32{0})
		h.AddAttribute(name, "description", b.Description)
		h.AddAttribute(name, "units", b.Units)
		h.AddAttribute(name, "_FillValue", []float32{rasterFill})
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("gridops: writing raster to %s: %v", w.Name(), err)
	}

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return fmt.Errorf("gridops: writing raster to %s: %v", w.Name(), err)
	}

	hours := make([]float64, nt)
	for i, t := range r.Times {
		hours[i] = t.Sub(rasterTimeEpoch).Hours()
	}
	ys := make([]float64, ny)
	for iy := range ys {
		ys[iy] = r.Y0 + (float64(iy)+0.5)*r.Dy
	}
	xs := make([]float64, nx)
	for ix := range xs {
		xs[ix] = r.X0 + (float64(ix)+0.5)*r.Dx
	}
	for _, coord := range []struct {
		name string
		vals []float64
	}{{"time", hours}, {"y", ys}, {"x", xs}} {
		if err := writeFloat64s(f, coord.name, coord.vals); err != nil {
			return fmt.Errorf("gridops: writing %s coordinate to %s: %v", coord.name, w.Name(), err)
		}
	}

	for _, name := range r.order {
		if err := writeBand(f, name, r.bands[name].Data); err != nil {
			return fmt.Errorf("gridops: writing variable %s to %s: %v", name, w.Name(), err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		return fmt.Errorf("gridops: writing raster to %s: %v", w.Name(), err)
	}
	Log.WithFields(r.Summary()).WithField("file", w.Name()).Info("wrote raster")
	return nil
}

// writeFloat64s writes a complete float64 variable to f.
func writeFloat64s(f *cdf.File, name string, vals []float64) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(vals); err != nil {
		return err
	}
	return nil
}

// writeBand writes one band variable to f, converting the data to
// float32 and replacing NaN with the fill value.
func writeBand(f *cdf.File, name string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		if math.IsNaN(e) {
			data32[i] = rasterFill
		} else {
			data32[i] = float32(e)
		}
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data32); err != nil {
		return err
	}
	return nil
}

// ReadRaster loads a raster previously saved with Write. *os.File
// satisfies rw.
func ReadRaster(rw cdf.ReaderWriterAt) (*Raster, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("gridops: reading raster: %v", err)
	}

	version, _ := f.Header.GetAttribute("", "data_version").(string)
	if version != DataVersion {
		return nil, fmt.Errorf("gridops: reading raster: data version %s is incompatible "+
			"with the required version %s", version, DataVersion)
	}

	x0, err := globalFloat(f, "x0")
	if err != nil {
		return nil, err
	}
	y0, err := globalFloat(f, "y0")
	if err != nil {
		return nil, err
	}
	dx, err := globalFloat(f, "dx")
	if err != nil {
		return nil, err
	}
	dy, err := globalFloat(f, "dy")
	if err != nil {
		return nil, err
	}
	nx, err := globalInt(f, "nx")
	if err != nil {
		return nil, err
	}
	ny, err := globalInt(f, "ny")
	if err != nil {
		return nil, err
	}

	times, err := readTimes(f)
	if err != nil {
		return nil, err
	}
	nt := len(times)

	srStr, _ := f.Header.GetAttribute("", "proj4").(string)
	if srStr == "" {
		srStr = LongLat
	}
	sr, err := proj.Parse(srStr)
	if err != nil {
		return nil, fmt.Errorf("gridops: reading raster: parsing projection '%s': %v", srStr, err)
	}

	out, err := NewRaster(x0, y0, dx, dy, nx, ny, sr, times)
	if err != nil {
		return nil, err
	}
	out.Proj4 = srStr

	for _, name := range f.Header.Variables() {
		if name == "time" || name == "y" || name == "x" {
			continue
		}
		dims := f.Header.Lengths(name)
		if len(dims) != 3 || dims[0] != nt || dims[1] != ny || dims[2] != nx {
			return nil, fmt.Errorf("gridops: reading raster: variable %s has dimensions %v; want [%d %d %d]",
				name, dims, nt, ny, nx)
		}
		desc, _ := f.Header.GetAttribute(name, "description").(string)
		units, _ := f.Header.GetAttribute(name, "units").(string)
		fill := float32(rasterFill)
		if fv, ok := f.Header.GetAttribute(name, "_FillValue").([]float32); ok && len(fv) == 1 {
			fill = fv[0]
		}
		r := f.Reader(name, nil, nil)
		tmp := make([]float32, nt*ny*nx)
		if _, err := r.Read(tmp); err != nil {
			return nil, fmt.Errorf("gridops: reading raster: variable %s: %v", name, err)
		}
		d := sparse.ZerosDense(nt, ny, nx)
		for i, v := range tmp {
			if v == fill || math.IsNaN(float64(v)) {
				d.Elements[i] = math.NaN()
			} else {
				d.Elements[i] = float64(v)
			}
		}
		if err := out.AddBand(name, desc, units, d); err != nil {
			return nil, err
		}
	}
	if len(out.order) == 0 {
		return nil, fmt.Errorf("gridops: reading raster: file has no bands")
	}
	Log.WithFields(out.Summary()).Info("read saved raster")
	return out, nil
}

// readTimes decodes the time coordinate variable of a saved raster.
func readTimes(f *cdf.File) ([]time.Time, error) {
	lens := f.Header.Lengths("time")
	if len(lens) != 1 {
		return nil, fmt.Errorf("gridops: reading raster: file has no time coordinate")
	}
	units, _ := f.Header.GetAttribute("time", "units").(string)
	if units == "" {
		return nil, fmt.Errorf("gridops: reading raster: time coordinate has no units attribute")
	}
	r := f.Reader("time", nil, nil)
	vals := make([]float64, lens[0])
	if _, err := r.Read(vals); err != nil {
		return nil, fmt.Errorf("gridops: reading raster: reading time coordinate: %v", err)
	}
	return parseCFTime(units, vals)
}

// globalFloat reads a float64 global attribute of a saved raster.
func globalFloat(f *cdf.File, name string) (float64, error) {
	if v, ok := f.Header.GetAttribute("", name).([]float64); ok && len(v) == 1 {
		return v[0], nil
	}
	return 0, fmt.Errorf("gridops: reading raster: missing global attribute %s", name)
}

// globalInt reads an int32 global attribute of a saved raster.
func globalInt(f *cdf.File, name string) (int, error) {
	if v, ok := f.Header.GetAttribute("", name).([]int32); ok && len(v) == 1 {
		return int(v[0]), nil
	}
	return 0, fmt.Errorf("gridops: reading raster: missing global attribute %s", name)
}
