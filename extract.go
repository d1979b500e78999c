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
	"fmt"
	"math"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// ExtractPoints samples every band of r at the given points using
// nearest-cell sampling, returning a table with one row per (point,
// time, band) combination and columns "point", "time", "band", and
// "value". pointNames labels the rows; if it is nil the points are
// numbered. pointSR gives the points' spatial reference; nil means the
// points are already in the raster's spatial reference.
//
// A point outside the raster's extent yields missing values rather than
// an error.
func ExtractPoints(r *Raster, points []geom.Point, pointNames []string, pointSR *proj.SR) (*Table, error) {
	if pointNames != nil && len(pointNames) != len(points) {
		return nil, fmt.Errorf("gridops: got %d point names for %d points",
			len(pointNames), len(points))
	}
	pts := points
	if pointSR != nil && !pointSR.Equal(r.SR, 10) {
		ct, err := pointSR.NewTransform(r.SR)
		if err != nil {
			return nil, fmt.Errorf("gridops: extracting points: %v", err)
		}
		pts = make([]geom.Point, len(points))
		for i, p := range points {
			x, y, err := ct(p.X, p.Y)
			if err != nil {
				pts[i] = geom.Point{X: math.NaN(), Y: math.NaN()}
				continue
			}
			pts[i] = geom.Point{X: x, Y: y}
		}
	}
	t := NewTable("point", "time", "band", "value")
	for i, p := range pts {
		name := strconv.Itoa(i)
		if pointNames != nil {
			name = pointNames[i]
		}
		var iy, ix int
		inGrid := false
		if !math.IsNaN(p.X) && !math.IsNaN(p.Y) {
			iy, ix, inGrid = r.CellIndex(p)
		}
		for it, ts := range r.Times {
			for _, bandName := range r.order {
				v := math.NaN()
				if inGrid {
					v = r.bands[bandName].Data.Get(it, iy, ix)
				}
				if err := t.AddRow(p, name, ts, bandName, v); err != nil {
					return nil, err
				}
			}
		}
	}
	Log.WithField("rows", t.Len()).Debug("extracted point values")
	return t, nil
}
