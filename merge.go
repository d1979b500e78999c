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
	"path/filepath"
	"strings"
)

// Merge combines the bands of several rasters into one raster. The
// rasters must share the same grid, spatial reference, and number of
// time steps; the merged raster keeps the time coordinate of the first
// input. Band names are normalized by stripping file-derived extension
// suffixes, and a name collision after normalization is an error.
func Merge(rasters ...*Raster) (*Raster, error) {
	if len(rasters) == 0 {
		return nil, fmt.Errorf("gridops: no rasters to merge")
	}
	first := rasters[0]
	out, err := NewRaster(first.X0, first.Y0, first.Dx, first.Dy,
		first.Nx, first.Ny, first.SR, first.Times)
	if err != nil {
		return nil, err
	}
	out.Proj4 = first.Proj4
	for _, r := range rasters {
		if err := first.sameGrid(r); err != nil {
			return nil, fmt.Errorf("gridops: merge: %v", err)
		}
		if len(r.Times) != len(first.Times) {
			return nil, fmt.Errorf("gridops: merge: rasters have %d and %d time steps",
				len(first.Times), len(r.Times))
		}
		for _, name := range r.order {
			b := r.bands[name]
			norm := normalizeBandName(name)
			if _, ok := out.bands[norm]; ok {
				return nil, fmt.Errorf("gridops: merge: duplicate band name '%s'", norm)
			}
			if err := out.AddBand(norm, b.Description, b.Units, b.Data.Copy()); err != nil {
				return nil, err
			}
		}
	}
	Log.WithField("bands", out.order).Debug("merged rasters")
	return out, nil
}

// sameGrid checks that two rasters share the same grid geometry and
// spatial reference.
func (r *Raster) sameGrid(o *Raster) error {
	if r.Nx != o.Nx || r.Ny != o.Ny {
		return fmt.Errorf("raster sizes %dx%d and %dx%d do not match",
			r.Nx, r.Ny, o.Nx, o.Ny)
	}
	if r.X0 != o.X0 || r.Y0 != o.Y0 || r.Dx != o.Dx || r.Dy != o.Dy {
		return fmt.Errorf("raster geometries (%g, %g, %g, %g) and (%g, %g, %g, %g) do not match",
			r.X0, r.Y0, r.Dx, r.Dy, o.X0, o.Y0, o.Dx, o.Dy)
	}
	if !r.SR.Equal(o.SR, 10) {
		return fmt.Errorf("raster spatial references '%s' and '%s' do not match",
			r.SR.Name, o.SR.Name)
	}
	return nil
}

// normalizeBandName strips a recognized data-file extension from a band
// name that was derived from a source file name.
func normalizeBandName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".nc", ".nc4", ".cdf", ".netcdf", ".grib", ".grb", ".grib2",
		".tif", ".tiff", ".hdf", ".h5":
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
