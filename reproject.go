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

	"github.com/ctessum/sparse"
)

// Reproject resamples every band of r onto the given grid using bilinear
// interpolation, taking each target cell's value from the source cells
// surrounding the target cell center. The output raster's shape and
// resolution come from the grid alone.
//
// The resampling itself works on one bare plane of values at a time and
// carries no metadata, so Reproject explicitly reapplies the band names,
// descriptions, units, and the time coordinate to the recombined result.
//
// Target cells whose centers fall outside the source raster, cannot be
// transformed into its spatial reference, or interpolate from any missing
// source cell become missing (NaN).
func Reproject(r *Raster, grid *Grid) (*Raster, error) {
	ct, err := grid.SR.NewTransform(r.SR)
	if err != nil {
		return nil, fmt.Errorf("gridops: reprojecting: %v", err)
	}
	// Fractional source-grid coordinates of every target cell center.
	// A cell center exactly on a source cell center has whole-number
	// coordinates.
	n := grid.Ny * grid.Nx
	fx := make([]float64, n)
	fy := make([]float64, n)
	for iy := 0; iy < grid.Ny; iy++ {
		for ix := 0; ix < grid.Nx; ix++ {
			i := iy*grid.Nx + ix
			sx, sy, err := ct(grid.X0+(float64(ix)+0.5)*grid.Dx,
				grid.Y0+(float64(iy)+0.5)*grid.Dy)
			if err != nil {
				fx[i], fy[i] = math.NaN(), math.NaN()
				continue
			}
			fx[i] = (sx-r.X0)/r.Dx - 0.5
			fy[i] = (sy-r.Y0)/r.Dy - 0.5
		}
	}

	out, err := NewRaster(grid.X0, grid.Y0, grid.Dx, grid.Dy,
		grid.Nx, grid.Ny, grid.SR, r.Times)
	if err != nil {
		return nil, err
	}
	out.Proj4 = grid.Proj4
	nSrc := r.Ny * r.Nx
	for _, name := range r.order {
		b := r.bands[name]
		d := sparse.ZerosDense(len(r.Times), grid.Ny, grid.Nx)
		for it := range r.Times {
			resampleBilinear(d.Elements[it*n:(it+1)*n],
				b.Data.Elements[it*nSrc:(it+1)*nSrc], r.Ny, r.Nx, fy, fx)
		}
		if err := out.AddBand(name, b.Description, b.Units, d); err != nil {
			return nil, err
		}
	}
	Log.WithFields(out.Summary()).WithField("sr", grid.SR.Name).Info("reprojected raster")
	return out, nil
}

// resampleBilinear fills dst with values interpolated from the source
// plane src (with ny rows of nx columns) at the given fractional
// coordinates. A destination cell becomes NaN unless every source cell
// with nonzero interpolation weight is inside the plane and holds a
// defined value.
func resampleBilinear(dst, src []float64, ny, nx int, fy, fx []float64) {
	for i := range dst {
		x, y := fx[i], fy[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			dst[i] = math.NaN()
			continue
		}
		ix0 := int(math.Floor(x))
		iy0 := int(math.Floor(y))
		wx := x - float64(ix0)
		wy := y - float64(iy0)
		// Zero-weight corners are skipped entirely, so a center exactly
		// on a source center takes that cell's value even when the
		// zero-weight neighbors are outside the plane or missing.
		var v float64
		ok := true
		for _, c := range [4]struct {
			iy, ix int
			w      float64
		}{
			{iy0, ix0, (1 - wx) * (1 - wy)},
			{iy0, ix0 + 1, wx * (1 - wy)},
			{iy0 + 1, ix0, (1 - wx) * wy},
			{iy0 + 1, ix0 + 1, wx * wy},
		} {
			if c.w == 0 {
				continue
			}
			if c.ix < 0 || c.ix >= nx || c.iy < 0 || c.iy >= ny {
				ok = false
				break
			}
			s := src[c.iy*nx+c.ix]
			if math.IsNaN(s) {
				ok = false
				break
			}
			v += c.w * s
		}
		if !ok {
			dst[i] = math.NaN()
			continue
		}
		dst[i] = v
	}
}
