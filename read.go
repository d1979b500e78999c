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
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// LongLat is the spatial reference definition of raw longitude-latitude
// data.
const LongLat = "+proj=longlat +datum=WGS84 +no_defs"

// Names recognized as horizontal and time coordinate variables.
var (
	xCoordNames    = []string{"longitude", "lon", "x"}
	yCoordNames    = []string{"latitude", "lat", "y"}
	timeCoordNames = []string{"time", "valid_time"}
)

// ReadNetCDF reads the named variables from a NetCDF file (classic or
// NetCDF-4/HDF5 format) into a Raster. If no variable names are given, it
// reads every variable gridded on the file's horizontal coordinates. A
// file that turns out to hold exactly one such variable gets a band named
// after the file instead of the variable, following the convention for
// single-variable product files; Merge strips the extension from names
// created this way.
//
// The horizontal grid is taken from the file's coordinate variables,
// which give cell centers and must be evenly spaced. Data stored with
// descending y coordinates is flipped so that row 0 is the southern edge
// of the grid. Packed variables are unpacked using their scale_factor and
// add_offset attributes, and values equal to the _FillValue or
// missing_value attribute become NaN.
//
// The spatial reference is taken from a global "proj4" attribute if there
// is one; otherwise the data is assumed to be in geographic coordinates.
func ReadNetCDF(filename string, varNames ...string) (*Raster, error) {
	nc, err := netcdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("gridops: opening %s: %v", filename, err)
	}
	defer nc.Close()

	xName, xCoords, err := findCoord(nc, xCoordNames)
	if err != nil {
		return nil, fmt.Errorf("gridops: %s: %v", filename, err)
	}
	yName, yCoords, err := findCoord(nc, yCoordNames)
	if err != nil {
		return nil, fmt.Errorf("gridops: %s: %v", filename, err)
	}
	dx, err := cellSpacing(xCoords, xName)
	if err != nil {
		return nil, fmt.Errorf("gridops: %s: %v", filename, err)
	}
	if dx < 0 {
		return nil, fmt.Errorf("gridops: %s: coordinate %s must increase", filename, xName)
	}
	dy, err := cellSpacing(yCoords, yName)
	if err != nil {
		return nil, fmt.Errorf("gridops: %s: %v", filename, err)
	}
	flipY := dy < 0
	if flipY {
		dy = -dy
		yCoords = reverseFloat64s(yCoords)
	}

	times, tName := readTimeCoord(nc, filename)
	nt, ny, nx := len(times), len(yCoords), len(xCoords)

	srStr := attrString(nc.Attributes(), "proj4")
	if srStr == "" {
		srStr = LongLat
	}
	sr, err := proj.Parse(srStr)
	if err != nil {
		return nil, fmt.Errorf("gridops: %s: parsing projection '%s': %v", filename, srStr, err)
	}

	r, err := NewRaster(xCoords[0]-dx/2, yCoords[0]-dy/2, dx, dy, nx, ny, sr, times)
	if err != nil {
		return nil, err
	}
	r.Proj4 = srStr

	singleVarFile := false
	if len(varNames) == 0 {
		varNames = findGridVars(nc, tName, yName, xName)
		if len(varNames) == 0 {
			return nil, fmt.Errorf("gridops: %s has no variables gridded on (%s, %s)",
				filename, yName, xName)
		}
		singleVarFile = len(varNames) == 1
	}
	for _, name := range varNames {
		b, err := readGridVar(nc, name, tName, yName, xName, nt, ny, nx)
		if err != nil {
			return nil, fmt.Errorf("gridops: %s: %v", filename, err)
		}
		if flipY {
			flipRows(b.Data)
		}
		bandName := name
		if singleVarFile {
			bandName = filepath.Base(filename)
		}
		if err := r.AddBand(bandName, b.Description, b.Units, b.Data); err != nil {
			return nil, err
		}
	}
	Log.WithFields(r.Summary()).WithField("file", filename).Info("read raster")
	return r, nil
}

// ReadSeries reads a series of NetCDF files into a single Raster,
// concatenating their time steps in order. The [DATE] wildcard in
// fileTemplate is replaced with each date from start (inclusive) to end
// (exclusive), stepping by fileDelta, formatted according to dateFormat.
// All files must share the same grid and hold the same variables.
func ReadSeries(fileTemplate, dateFormat string, start, end time.Time, fileDelta time.Duration, varNames ...string) (*Raster, error) {
	if fileDelta <= 0 {
		return nil, fmt.Errorf("gridops: file interval must be positive; got %v", fileDelta)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("gridops: no files in series between %v and %v", start, end)
	}
	if len(varNames) == 0 {
		// Resolve variable names from the first file so that every file
		// in the series produces the same band names.
		first := strings.Replace(fileTemplate, "[DATE]", start.Format(dateFormat), -1)
		var err error
		if varNames, err = listGridVars(first); err != nil {
			return nil, err
		}
	}
	var out *Raster
	for date := start; date.Before(end); date = date.Add(fileDelta) {
		fname := strings.Replace(fileTemplate, "[DATE]", date.Format(dateFormat), -1)
		r, err := ReadNetCDF(fname, varNames...)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = r
			continue
		}
		if out, err = concatTimes(out, r); err != nil {
			return nil, fmt.Errorf("gridops: appending %s: %v", fname, err)
		}
	}
	if out == nil {
		return nil, fmt.Errorf("gridops: no files in series between %v and %v", start, end)
	}
	return out, nil
}

// concatTimes returns a raster holding a's time steps followed by b's.
func concatTimes(a, b *Raster) (*Raster, error) {
	if err := a.sameGrid(b); err != nil {
		return nil, err
	}
	times := append(append([]time.Time{}, a.Times...), b.Times...)
	out := &Raster{
		X0: a.X0, Y0: a.Y0,
		Dx: a.Dx, Dy: a.Dy,
		Nx: a.Nx, Ny: a.Ny,
		SR:    a.SR,
		Proj4: a.Proj4,
		Times: times,
		bands: make(map[string]*Band),
	}
	for _, name := range a.order {
		ba := a.bands[name]
		bb, err := b.Band(name)
		if err != nil {
			return nil, err
		}
		d := sparse.ZerosDense(len(times), a.Ny, a.Nx)
		copy(d.Elements, ba.Data.Elements)
		copy(d.Elements[len(ba.Data.Elements):], bb.Data.Elements)
		if err := out.AddBand(name, ba.Description, ba.Units, d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// findCoord looks for a coordinate variable with one of the given names,
// returning its name and values.
func findCoord(nc api.Group, names []string) (string, []float64, error) {
	for _, want := range names {
		for _, have := range nc.ListVariables() {
			if strings.EqualFold(have, want) {
				vals, err := coordFloat64s(nc, have)
				if err != nil {
					return "", nil, err
				}
				return have, vals, nil
			}
		}
	}
	return "", nil, fmt.Errorf("no coordinate variable found; want one of %v", names)
}

// coordFloat64s reads a one-dimensional coordinate variable as float64s.
func coordFloat64s(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("reading coordinate %s: %v", name, err)
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("reading coordinate %s: %v", name, err)
	}
	switch v := vals.(type) {
	case []float64:
		return v, nil
	case []float32:
		return floats64(v), nil
	case []int64:
		return floats64(v), nil
	case []int32:
		return floats64(v), nil
	case []int16:
		return floats64(v), nil
	default:
		return nil, fmt.Errorf("coordinate %s has unsupported type %s", name, vg.GoType())
	}
}

type ncNumber interface {
	~float64 | ~float32 | ~int64 | ~int32 | ~int16 | ~int8 | ~uint8 | ~uint16 | ~uint32
}

func floats64[T ncNumber](v []T) []float64 {
	out := make([]float64, len(v))
	for i, e := range v {
		out[i] = float64(e)
	}
	return out
}

// readTimeCoord decodes the file's time coordinate. If the file has no
// time coordinate the raster gets a single placeholder time step, and if
// the coordinate cannot be decoded each step gets a placeholder
// timestamp; both cases can be repaired later with SetTimes.
func readTimeCoord(nc api.Group, filename string) ([]time.Time, string) {
	tName, vals, err := findCoord(nc, timeCoordNames)
	if err != nil {
		return []time.Time{time.Unix(0, 0).UTC()}, ""
	}
	vg, err := nc.GetVarGetter(tName)
	if err != nil {
		return placeholderTimes(len(vals), filename, ""), tName
	}
	units := attrString(vg.Attributes(), "units")
	times, err := parseCFTime(units, vals)
	if err != nil {
		return placeholderTimes(len(vals), filename, units), tName
	}
	return times, tName
}

func placeholderTimes(n int, filename, units string) []time.Time {
	Log.WithFields(logrus.Fields{
		"file":  filename,
		"units": units,
	}).Warn("cannot decode time coordinate; using placeholder timestamps")
	return HourlyTimes(time.Unix(0, 0).UTC(), n)
}

// parseCFTime converts the values of a time coordinate with CF-style
// units of the form "hours since 1900-01-01 00:00:00.0" to timestamps.
func parseCFTime(units string, vals []float64) ([]time.Time, error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || !strings.EqualFold(fields[1], "since") {
		return nil, fmt.Errorf("gridops: unsupported time units '%s'", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSuffix(fields[0], "s")) {
	case "day", "d":
		step = 24 * time.Hour
	case "hour", "hr", "h":
		step = time.Hour
	case "minute", "min":
		step = time.Minute
	case "second", "sec":
		step = time.Second
	default:
		return nil, fmt.Errorf("gridops: unsupported time unit '%s'", fields[0])
	}
	origin := strings.Join(fields[2:], " ")
	var base time.Time
	var err error
	for _, layout := range []string{
		"2006-01-02 15:04:05.9", "2006-01-02 15:04:05",
		"2006-01-02 15:04", "2006-01-02", time.RFC3339,
	} {
		if base, err = time.Parse(layout, origin); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("gridops: unsupported time origin '%s'", origin)
	}
	times := make([]time.Time, len(vals))
	secs := step.Seconds()
	for i, v := range vals {
		// Round to whole seconds so that integer offsets survive the
		// float64 multiplication exactly.
		times[i] = base.Add(time.Duration(math.Round(v*secs)) * time.Second)
	}
	return times, nil
}

// listGridVars opens a file and lists the variables gridded on its
// horizontal coordinates.
func listGridVars(filename string) ([]string, error) {
	nc, err := netcdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("gridops: opening %s: %v", filename, err)
	}
	defer nc.Close()
	xName, _, err := findCoord(nc, xCoordNames)
	if err != nil {
		return nil, fmt.Errorf("gridops: %s: %v", filename, err)
	}
	yName, _, err := findCoord(nc, yCoordNames)
	if err != nil {
		return nil, fmt.Errorf("gridops: %s: %v", filename, err)
	}
	tName, _, _ := findCoord(nc, timeCoordNames)
	names := findGridVars(nc, tName, yName, xName)
	if len(names) == 0 {
		return nil, fmt.Errorf("gridops: %s has no variables gridded on (%s, %s)",
			filename, yName, xName)
	}
	return names, nil
}

// findGridVars lists the variables gridded on the file's coordinates.
func findGridVars(nc api.Group, tName, yName, xName string) []string {
	var names []string
	for _, name := range nc.ListVariables() {
		if name == tName || name == yName || name == xName {
			continue
		}
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		if dimsMatchGrid(vg.Dimensions(), tName, yName, xName) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func dimsMatchGrid(dims []string, tName, yName, xName string) bool {
	if tName != "" {
		return len(dims) == 3 && dims[0] == tName && dims[1] == yName && dims[2] == xName
	}
	return len(dims) == 2 && dims[0] == yName && dims[1] == xName
}

// readGridVar reads one gridded variable, unpacking it and replacing
// missing values with NaN.
func readGridVar(nc api.Group, name, tName, yName, xName string, nt, ny, nx int) (*Band, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	dims := vg.Dimensions()
	if !dimsMatchGrid(dims, tName, yName, xName) {
		want := []string{tName, yName, xName}
		if tName == "" {
			want = want[1:]
		}
		return nil, fmt.Errorf("variable %s has dimensions %v; want %v", name, dims, want)
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	raw, err := gridFloat64s(vals, nt, ny, nx)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %v", name, err)
	}

	attrs := vg.Attributes()
	scale, hasScale := attrFloat(attrs, "scale_factor")
	if !hasScale {
		scale = 1
	}
	offset, _ := attrFloat(attrs, "add_offset")
	fill, hasFill := attrFloat(attrs, "_FillValue")
	missing, hasMissing := attrFloat(attrs, "missing_value")

	d := sparse.ZerosDense(nt, ny, nx)
	for i, v := range raw {
		if v != v || (hasFill && v == fill) || (hasMissing && v == missing) {
			d.Elements[i] = math.NaN()
			continue
		}
		d.Elements[i] = v*scale + offset
	}

	desc := attrString(attrs, "long_name")
	if desc == "" {
		desc = attrString(attrs, "description")
	}
	return &Band{
		Description: desc,
		Units:       attrString(attrs, "units"),
		Data:        d,
	}, nil
}

// gridFloat64s flattens the nested slices returned for a gridded variable
// into a flat row-major slice, checking the shape along the way.
func gridFloat64s(vals interface{}, nt, ny, nx int) ([]float64, error) {
	switch v := vals.(type) {
	case [][][]float64:
		return flattenGrid(v, nt, ny, nx)
	case [][][]float32:
		return flattenGrid(v, nt, ny, nx)
	case [][][]int64:
		return flattenGrid(v, nt, ny, nx)
	case [][][]int32:
		return flattenGrid(v, nt, ny, nx)
	case [][][]int16:
		return flattenGrid(v, nt, ny, nx)
	case [][][]int8:
		return flattenGrid(v, nt, ny, nx)
	case [][][]uint8:
		return flattenGrid(v, nt, ny, nx)
	case [][]float64:
		return flattenGrid([][][]float64{v}, nt, ny, nx)
	case [][]float32:
		return flattenGrid([][][]float32{v}, nt, ny, nx)
	case [][]int64:
		return flattenGrid([][][]int64{v}, nt, ny, nx)
	case [][]int32:
		return flattenGrid([][][]int32{v}, nt, ny, nx)
	case [][]int16:
		return flattenGrid([][][]int16{v}, nt, ny, nx)
	case [][]int8:
		return flattenGrid([][][]int8{v}, nt, ny, nx)
	case [][]uint8:
		return flattenGrid([][][]uint8{v}, nt, ny, nx)
	default:
		return nil, fmt.Errorf("unsupported data type %T", vals)
	}
}

func flattenGrid[T ncNumber](v [][][]T, nt, ny, nx int) ([]float64, error) {
	if len(v) != nt {
		return nil, fmt.Errorf("got %d time steps; want %d", len(v), nt)
	}
	out := make([]float64, 0, nt*ny*nx)
	for _, plane := range v {
		if len(plane) != ny {
			return nil, fmt.Errorf("got %d rows; want %d", len(plane), ny)
		}
		for _, row := range plane {
			if len(row) != nx {
				return nil, fmt.Errorf("got %d columns; want %d", len(row), nx)
			}
			for _, e := range row {
				out = append(out, float64(e))
			}
		}
	}
	return out, nil
}

// cellSpacing returns the spacing of an evenly spaced coordinate. The
// result is negative for a descending coordinate.
func cellSpacing(coords []float64, name string) (float64, error) {
	if len(coords) < 2 {
		return 0, fmt.Errorf("coordinate %s must have at least 2 values", name)
	}
	d := (coords[len(coords)-1] - coords[0]) / float64(len(coords)-1)
	if d == 0 {
		return 0, fmt.Errorf("coordinate %s has zero spacing", name)
	}
	for i := 1; i < len(coords); i++ {
		if step := coords[i] - coords[i-1]; math.Abs(step-d) > math.Abs(d)*1e-4 {
			return 0, fmt.Errorf("coordinate %s is not evenly spaced: step %d is %g; want %g",
				name, i, step, d)
		}
	}
	return d, nil
}

func reverseFloat64s(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, e := range v {
		out[len(v)-1-i] = e
	}
	return out
}

// flipRows reverses the row order of each time step in place.
func flipRows(d *sparse.DenseArray) {
	nt, ny, nx := d.Shape[0], d.Shape[1], d.Shape[2]
	tmp := make([]float64, nx)
	for it := 0; it < nt; it++ {
		plane := d.Elements[it*ny*nx : (it+1)*ny*nx]
		for iy := 0; iy < ny/2; iy++ {
			top := plane[iy*nx : (iy+1)*nx]
			bottom := plane[(ny-1-iy)*nx : (ny-iy)*nx]
			copy(tmp, top)
			copy(top, bottom)
			copy(bottom, tmp)
		}
	}
}

// attrFloat reads a numeric attribute, which may be stored as a scalar or
// as a single-element slice.
func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch a := v.(type) {
	case float64:
		return a, true
	case float32:
		return float64(a), true
	case int64:
		return float64(a), true
	case int32:
		return float64(a), true
	case int16:
		return float64(a), true
	case int8:
		return float64(a), true
	case uint8:
		return float64(a), true
	case []float64:
		if len(a) == 1 {
			return a[0], true
		}
	case []float32:
		if len(a) == 1 {
			return float64(a[0]), true
		}
	case []int64:
		if len(a) == 1 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) == 1 {
			return float64(a[0]), true
		}
	case []int16:
		if len(a) == 1 {
			return float64(a[0]), true
		}
	case []int8:
		if len(a) == 1 {
			return float64(a[0]), true
		}
	case []uint8:
		if len(a) == 1 {
			return float64(a[0]), true
		}
	}
	return 0, false
}

// attrString reads a string attribute.
func attrString(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	if v, ok := attrs.Get(key); ok {
		switch a := v.(type) {
		case string:
			return a
		case []string:
			if len(a) == 1 {
				return a[0]
			}
		}
	}
	return ""
}
