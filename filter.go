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
	"time"

	"github.com/ctessum/sparse"
)

// SelectTimes returns a raster retaining only the time steps whose
// timestamps satisfy keep. The input raster is not modified. It is an
// error for no time step to match.
func SelectTimes(r *Raster, keep func(time.Time) bool) (*Raster, error) {
	var steps []int
	var times []time.Time
	for i, t := range r.Times {
		if keep(t) {
			steps = append(steps, i)
			times = append(times, t)
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("gridops: no time steps match the filter")
	}
	out, err := NewRaster(r.X0, r.Y0, r.Dx, r.Dy, r.Nx, r.Ny, r.SR, times)
	if err != nil {
		return nil, err
	}
	out.Proj4 = r.Proj4
	n := r.Ny * r.Nx
	for _, name := range r.order {
		b := r.bands[name]
		d := sparse.ZerosDense(len(steps), r.Ny, r.Nx)
		for j, it := range steps {
			copy(d.Elements[j*n:(j+1)*n], b.Data.Elements[it*n:(it+1)*n])
		}
		if err := out.AddBand(name, b.Description, b.Units, d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TimeRange returns a raster retaining only the time steps with
// timestamps from start to end, inclusive on both ends.
func TimeRange(r *Raster, start, end time.Time) (*Raster, error) {
	out, err := SelectTimes(r, func(t time.Time) bool {
		return !t.Before(start) && !t.After(end)
	})
	if err != nil {
		return nil, fmt.Errorf("gridops: no time steps between %v and %v", start, end)
	}
	return out, nil
}
