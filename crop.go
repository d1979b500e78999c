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

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// Crop returns the part of r inside the bounding box of the area of
// interest, with cells whose centers fall outside the area's zones set
// to missing. The raster and the area of interest must already be in
// the same spatial reference; use TransformTo to reconcile them before
// cropping.
func Crop(r *Raster, aoi *AOI) (*Raster, error) {
	if !r.SR.Equal(aoi.SR, 10) {
		return nil, fmt.Errorf("gridops: cropping: raster spatial reference '%s' does not match area of interest '%s'",
			r.SR.Name, aoi.SR.Name)
	}
	b := aoi.Extent()
	ix0 := int(math.Floor((b.Min.X - r.X0) / r.Dx))
	iy0 := int(math.Floor((b.Min.Y - r.Y0) / r.Dy))
	ix1 := int(math.Ceil((b.Max.X - r.X0) / r.Dx))
	iy1 := int(math.Ceil((b.Max.Y - r.Y0) / r.Dy))
	ix0, iy0 = max(ix0, 0), max(iy0, 0)
	ix1, iy1 = min(ix1, r.Nx), min(iy1, r.Ny)
	if ix0 >= ix1 || iy0 >= iy1 {
		return nil, fmt.Errorf("gridops: cropping: the area of interest does not overlap the raster")
	}
	nx, ny := ix1-ix0, iy1-iy0

	mask := aoi.Union()
	inside := make([]bool, ny*nx)
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			c := r.CellCenter(iy0+iy, ix0+ix)
			inside[iy*nx+ix] = c.Within(mask) != geom.Outside
		}
	}

	out, err := NewRaster(r.X0+float64(ix0)*r.Dx, r.Y0+float64(iy0)*r.Dy,
		r.Dx, r.Dy, nx, ny, r.SR, r.Times)
	if err != nil {
		return nil, err
	}
	out.Proj4 = r.Proj4
	for _, name := range r.order {
		b := r.bands[name]
		d := sparse.ZerosDense(len(r.Times), ny, nx)
		for it := range r.Times {
			for iy := 0; iy < ny; iy++ {
				for ix := 0; ix < nx; ix++ {
					if !inside[iy*nx+ix] {
						d.Elements[(it*ny+iy)*nx+ix] = math.NaN()
						continue
					}
					d.Elements[(it*ny+iy)*nx+ix] =
						b.Data.Elements[(it*r.Ny+iy0+iy)*r.Nx+ix0+ix]
				}
			}
		}
		if err := out.AddBand(name, b.Description, b.Units, d); err != nil {
			return nil, err
		}
	}
	Log.WithFields(out.Summary()).Info("cropped raster")
	return out, nil
}
