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

// Package gridops prepares gridded climate and weather data for use in
// spatial models. It reads NetCDF raster files, merges variables that
// arrive in separate files, repairs broken time coordinates, derives new
// variables from existing ones, aggregates hourly records to daily
// records, reprojects and crops rasters to model grids, and extracts
// values at points or over polygons.
package gridops

import (
	"fmt"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// Raster holds one or more named variables ("bands") on a shared regular
// grid with a shared time dimension. Row index iy increases with y, so
// row 0 is the southern edge of the grid; readers flip data stored
// north-to-south when loading it. Missing values are represented as NaN.
type Raster struct {
	// X0 and Y0 are the coordinates of the lower-left corner of the
	// lower-left grid cell, and Dx and Dy are the cell edge lengths in
	// the x and y directions, in the units of the spatial reference.
	X0, Y0, Dx, Dy float64

	// Nx and Ny are the numbers of grid columns and rows.
	Nx, Ny int

	// SR is the spatial reference system the grid is defined in.
	SR *proj.SR

	// Proj4 holds the PROJ4 or WKT definition SR was parsed from, when
	// it is known. It is carried along because SR cannot be converted
	// back to a definition string, and Write stores it so files keep
	// their georeferencing.
	Proj4 string

	// Times holds the timestamp of each time step. Timestamps decoded
	// from a file may be placeholders; SetTimes replaces them with an
	// authoritative sequence.
	Times []time.Time

	bands map[string]*Band
	order []string
}

// Band is one variable within a Raster. Missing values are NaN.
type Band struct {
	// Description and Units describe the variable for metadata and
	// plot labeling purposes.
	Description string
	Units       string

	// Data holds the values with shape [len(Times), Ny, Nx].
	Data *sparse.DenseArray
}

// NewRaster creates an empty raster with the given grid geometry, spatial
// reference, and time steps.
func NewRaster(x0, y0, dx, dy float64, nx, ny int, sr *proj.SR, times []time.Time) (*Raster, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("gridops: invalid raster size %d x %d", nx, ny)
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("gridops: invalid raster cell size %g x %g", dx, dy)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("gridops: raster must have at least one time step")
	}
	if sr == nil {
		return nil, fmt.Errorf("gridops: raster spatial reference is not set")
	}
	return &Raster{
		X0: x0, Y0: y0,
		Dx: dx, Dy: dy,
		Nx: nx, Ny: ny,
		SR:    sr,
		Times: append([]time.Time{}, times...),
		bands: make(map[string]*Band),
	}, nil
}

// AddBand adds a variable to the raster. data must have shape
// [len(r.Times), r.Ny, r.Nx].
func (r *Raster) AddBand(name, description, units string, data *sparse.DenseArray) error {
	if name == "" {
		return fmt.Errorf("gridops: band name is empty")
	}
	if _, ok := r.bands[name]; ok {
		return fmt.Errorf("gridops: raster already has a band named '%s'", name)
	}
	if data == nil {
		return fmt.Errorf("gridops: band '%s' has no data", name)
	}
	if len(data.Shape) != 3 || data.Shape[0] != len(r.Times) ||
		data.Shape[1] != r.Ny || data.Shape[2] != r.Nx {
		return fmt.Errorf("gridops: band '%s' has shape %v but the raster requires [%d %d %d]",
			name, data.Shape, len(r.Times), r.Ny, r.Nx)
	}
	r.bands[name] = &Band{Description: description, Units: units, Data: data}
	r.order = append(r.order, name)
	return nil
}

// Band returns the named variable.
func (r *Raster) Band(name string) (*Band, error) {
	b, ok := r.bands[name]
	if !ok {
		return nil, fmt.Errorf("gridops: undefined band name '%s'; available bands are %v",
			name, r.order)
	}
	return b, nil
}

// BandNames returns the names of the raster's variables in the order
// they were added.
func (r *Raster) BandNames() []string {
	return append([]string{}, r.order...)
}

// RenameBand changes the name of a band, keeping its position in the
// band order.
func (r *Raster) RenameBand(from, to string) error {
	b, ok := r.bands[from]
	if !ok {
		return fmt.Errorf("gridops: undefined band name '%s'; available bands are %v",
			from, r.order)
	}
	if to == "" {
		return fmt.Errorf("gridops: band name is empty")
	}
	if from == to {
		return nil
	}
	if _, ok := r.bands[to]; ok {
		return fmt.Errorf("gridops: raster already has a band named '%s'", to)
	}
	delete(r.bands, from)
	r.bands[to] = b
	for i, n := range r.order {
		if n == from {
			r.order[i] = to
		}
	}
	return nil
}

// DropBand removes a band from the raster.
func (r *Raster) DropBand(name string) error {
	if _, ok := r.bands[name]; !ok {
		return fmt.Errorf("gridops: undefined band name '%s'; available bands are %v",
			name, r.order)
	}
	delete(r.bands, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetTimes replaces the raster's time coordinate. The number of new
// timestamps must match the number of time steps already in the raster,
// and the timestamps must strictly increase.
func (r *Raster) SetTimes(times []time.Time) error {
	if len(times) != len(r.Times) {
		return fmt.Errorf("gridops: got %d timestamps for a raster with %d time steps",
			len(times), len(r.Times))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return fmt.Errorf("gridops: timestamps must increase; step %d (%v) is not after step %d (%v)",
				i, times[i], i-1, times[i-1])
		}
	}
	r.Times = append([]time.Time{}, times...)
	return nil
}

// HourlyTimes generates n hourly timestamps starting at start. It is
// meant for repairing rasters whose encoded time coordinate is broken
// but which are known to hold an hourly series.
func HourlyTimes(start time.Time, n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return times
}

// Extent returns the outline of the raster in its own spatial reference.
func (r *Raster) Extent() geom.Polygon {
	xMax := r.X0 + float64(r.Nx)*r.Dx
	yMax := r.Y0 + float64(r.Ny)*r.Dy
	return geom.Polygon([]geom.Path{{
		{X: r.X0, Y: r.Y0}, {X: xMax, Y: r.Y0},
		{X: xMax, Y: yMax}, {X: r.X0, Y: yMax}, {X: r.X0, Y: r.Y0}}})
}

// CellPolygon returns the outline of the grid cell in row iy and column
// ix in the raster's own spatial reference.
func (r *Raster) CellPolygon(iy, ix int) geom.Polygon {
	x := r.X0 + float64(ix)*r.Dx
	y := r.Y0 + float64(iy)*r.Dy
	return geom.Polygon([]geom.Path{{
		{X: x, Y: y}, {X: x + r.Dx, Y: y},
		{X: x + r.Dx, Y: y + r.Dy}, {X: x, Y: y + r.Dy}, {X: x, Y: y}}})
}

// CellCenter returns the center point of the grid cell in row iy and
// column ix in the raster's own spatial reference.
func (r *Raster) CellCenter(iy, ix int) geom.Point {
	return geom.Point{
		X: r.X0 + (float64(ix)+0.5)*r.Dx,
		Y: r.Y0 + (float64(iy)+0.5)*r.Dy,
	}
}

// CellIndex returns the row and column of the grid cell containing point
// p, which must be in the raster's own spatial reference. withinGrid is
// false if p is outside the grid.
func (r *Raster) CellIndex(p geom.Point) (iy, ix int, withinGrid bool) {
	ix = int(math.Floor((p.X - r.X0) / r.Dx))
	iy = int(math.Floor((p.Y - r.Y0) / r.Dy))
	withinGrid = ix >= 0 && ix < r.Nx && iy >= 0 && iy < r.Ny
	return
}

// Copy returns a deep copy of the raster.
func (r *Raster) Copy() *Raster {
	o := &Raster{
		X0: r.X0, Y0: r.Y0,
		Dx: r.Dx, Dy: r.Dy,
		Nx: r.Nx, Ny: r.Ny,
		SR:    r.SR,
		Proj4: r.Proj4,
		Times: append([]time.Time{}, r.Times...),
		bands: make(map[string]*Band),
		order: append([]string{}, r.order...),
	}
	for name, b := range r.bands {
		o.bands[name] = &Band{
			Description: b.Description,
			Units:       b.Units,
			Data:        b.Data.Copy(),
		}
	}
	return o
}

// Summary returns logging fields describing the raster.
func (r *Raster) Summary() logrus.Fields {
	fields := logrus.Fields{
		"nx":    r.Nx,
		"ny":    r.Ny,
		"nt":    len(r.Times),
		"dx":    r.Dx,
		"dy":    r.Dy,
		"x0":    r.X0,
		"y0":    r.Y0,
		"bands": r.order,
	}
	if len(r.Times) > 0 {
		fields["start"] = r.Times[0]
		fields["end"] = r.Times[len(r.Times)-1]
	}
	return fields
}
