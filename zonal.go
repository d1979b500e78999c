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

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/sirupsen/logrus"
)

// zonalFuncs maps statistic names to reductions over cell values.
var zonalFuncs = map[string]func([]float64) float64{
	"mean":   stats.StatsMean,
	"min":    stats.StatsMin,
	"max":    stats.StatsMax,
	"sum":    stats.StatsSum,
	"stddev": stats.StatsSampleStandardDeviation,
	"count":  func(v []float64) float64 { return float64(len(v)) },
}

// rasterCell is one raster grid cell outline held in a spatial index.
type rasterCell struct {
	geom.Polygonal
	iy, ix int
}

// ZonalStats reduces every band of r over each zone of the area of
// interest, returning a table with one row per (zone, time, band)
// combination and columns "zone", "time", "band", and the statistic
// name. statistic chooses the reduction: "mean", "min", "max", "sum",
// "stddev", or "count". The reduction covers every cell that overlaps
// the zone.
//
// If skipMissing is true, missing cell values are excluded from the
// reduction. A zone that overlaps no cells, or whose overlapping values
// are all missing while skipMissing is set, yields a missing result
// rather than an error.
//
// The raster and the area of interest must be in the same spatial
// reference; use TransformTo to reconcile them first.
func ZonalStats(r *Raster, aoi *AOI, statistic string, skipMissing bool) (*Table, error) {
	reduce, ok := zonalFuncs[statistic]
	if !ok {
		return nil, fmt.Errorf("gridops: unknown zonal statistic '%s'", statistic)
	}
	if !r.SR.Equal(aoi.SR, 10) {
		return nil, fmt.Errorf("gridops: zonal statistics: raster spatial reference '%s' does not match area of interest '%s'",
			r.SR.Name, aoi.SR.Name)
	}

	index := rtree.NewTree(25, 50)
	for iy := 0; iy < r.Ny; iy++ {
		for ix := 0; ix < r.Nx; ix++ {
			index.Insert(&rasterCell{Polygonal: r.CellPolygon(iy, ix), iy: iy, ix: ix})
		}
	}

	t := NewTable("zone", "time", "band", statistic)
	t.PRJ = aoi.PRJ
	for _, z := range aoi.Zones {
		var cells []*rasterCell
		for _, cI := range index.SearchIntersect(z.Bounds()) {
			c := cI.(*rasterCell)
			if isect := c.Intersection(z.Polygonal); isect != nil && isect.Area() > 0 {
				cells = append(cells, c)
			}
		}
		for it, ts := range r.Times {
			for _, bandName := range r.order {
				b := r.bands[bandName]
				vals := make([]float64, 0, len(cells))
				for _, c := range cells {
					v := b.Data.Get(it, c.iy, c.ix)
					if skipMissing && math.IsNaN(v) {
						continue
					}
					vals = append(vals, v)
				}
				result := math.NaN()
				if len(vals) > 0 {
					result = reduce(vals)
				}
				if err := t.AddRow(z.Polygonal, z.Name, ts, bandName, result); err != nil {
					return nil, err
				}
			}
		}
	}
	Log.WithFields(logrus.Fields{
		"zones": len(aoi.Zones),
		"rows":  t.Len(),
		"stat":  statistic,
	}).Debug("computed zonal statistics")
	return t, nil
}
