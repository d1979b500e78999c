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
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// DailyMean reduces the time steps of r to one step per calendar day
// (UTC), where each resulting cell holds the arithmetic mean of that
// day's samples. Days are formed by truncating timestamps to midnight,
// and the result steps are ordered by ascending day and timestamped at
// midnight; use SetTimes afterward to apply different labels.
//
// If skipMissing is false, a missing sample makes the whole day's mean
// missing. If it is true, missing samples are excluded from the mean and
// only a day where every sample is missing stays missing.
func DailyMean(r *Raster, skipMissing bool) (*Raster, error) {
	dayIndex := make(map[time.Time][]int)
	var days []time.Time
	for i, t := range r.Times {
		t = t.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if _, ok := dayIndex[day]; !ok {
			days = append(days, day)
		}
		dayIndex[day] = append(dayIndex[day], i)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out, err := NewRaster(r.X0, r.Y0, r.Dx, r.Dy, r.Nx, r.Ny, r.SR, days)
	if err != nil {
		return nil, err
	}
	out.Proj4 = r.Proj4
	n := r.Ny * r.Nx
	for _, name := range r.order {
		b := r.bands[name]
		d := sparse.ZerosDense(len(days), r.Ny, r.Nx)
		for ig, day := range days {
			steps := dayIndex[day]
			group := d.Elements[ig*n : (ig+1)*n]
			if skipMissing {
				meanSkipMissing(group, b.Data.Elements, steps, n)
			} else {
				for _, it := range steps {
					floats.Add(group, b.Data.Elements[it*n:(it+1)*n])
				}
				floats.Scale(1/float64(len(steps)), group)
			}
		}
		if err := out.AddBand(name, b.Description, b.Units, d); err != nil {
			return nil, err
		}
	}
	Log.WithField("days", len(days)).Debug("aggregated to daily means")
	return out, nil
}

// meanSkipMissing fills group with the per-cell mean of the given time
// steps of src, ignoring NaN samples. Cells where every sample is NaN
// stay NaN.
func meanSkipMissing(group, src []float64, steps []int, n int) {
	counts := make([]int, len(group))
	for _, it := range steps {
		plane := src[it*n : (it+1)*n]
		for i, v := range plane {
			if !math.IsNaN(v) {
				group[i] += v
				counts[i]++
			}
		}
	}
	for i, c := range counts {
		if c == 0 {
			group[i] = math.NaN()
		} else {
			group[i] /= float64(c)
		}
	}
}
