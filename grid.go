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
	"path/filepath"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	goshp "github.com/jonas-p/go-shp"
)

// Grid defines a regular grid that rasters can be reprojected onto.
type Grid struct {
	Name   string
	Nx, Ny int
	Dx, Dy float64
	X0, Y0 float64
	Cells  []*GridCell
	SR     *proj.SR

	// Proj4 holds the PROJ4 or WKT definition SR was parsed from, when
	// it is known. Rasters reprojected onto the grid inherit it as
	// their georeferencing metadata.
	Proj4 string

	Extent geom.Polygon
	index  *rtree.Rtree
}

// GridCell defines an individual cell in a Grid.
type GridCell struct {
	geom.Polygonal
	Row, Col int
}

// NewGrid creates a regular grid in the given spatial reference, where
// all grid cells are the same size.
func NewGrid(name string, nx, ny int, dx, dy, x0, y0 float64, sr *proj.SR) *Grid {
	grid := &Grid{
		Name: name,
		Nx:   nx, Ny: ny,
		Dx: dx, Dy: dy,
		X0: x0, Y0: y0,
		SR:    sr,
		index: rtree.NewTree(25, 50),
	}
	grid.Cells = make([]*GridCell, 0, nx*ny)
	for ix := 0; ix < nx; ix++ {
		for iy := 0; iy < ny; iy++ {
			cell := new(GridCell)
			x := x0 + float64(ix)*dx
			y := y0 + float64(iy)*dy
			cell.Row, cell.Col = iy, ix
			cell.Polygonal = geom.Polygon([]geom.Path{{
				{X: x, Y: y}, {X: x + dx, Y: y},
				{X: x + dx, Y: y + dy}, {X: x, Y: y + dy}, {X: x, Y: y}}})
			grid.index.Insert(cell)
			grid.Cells = append(grid.Cells, cell)
		}
	}
	grid.Extent = geom.Polygon([]geom.Path{{{X: x0, Y: y0},
		{X: x0 + dx*float64(nx), Y: y0},
		{X: x0 + dx*float64(nx), Y: y0 + dy*float64(ny)},
		{X: x0, Y: y0 + dy*float64(ny)}, {X: x0, Y: y0}}})
	return grid
}

// TemplateGrid creates a grid in the spatial reference sr that covers the
// extent of raster r. The grid outline is found by transforming points
// along the raster's boundary, so it holds even when the transformed
// edges curve. dx and dy give the cell size in the units of sr; if either
// is not positive, the grid keeps the raster's cell counts and the cell
// size is derived from the transformed extent.
func TemplateGrid(name string, r *Raster, sr *proj.SR, dx, dy float64) (*Grid, error) {
	ct, err := r.SR.NewTransform(sr)
	if err != nil {
		return nil, fmt.Errorf("gridops: creating template grid: %v", err)
	}
	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	for _, p := range boundaryPoints(r) {
		x, y, err := ct(p.X, p.Y)
		if err != nil {
			continue
		}
		xMin, xMax = math.Min(xMin, x), math.Max(xMax, x)
		yMin, yMax = math.Min(yMin, y), math.Max(yMax, y)
	}
	if xMin >= xMax || yMin >= yMax {
		return nil, fmt.Errorf("gridops: creating template grid: no part of the raster transforms into '%s'", sr.Name)
	}
	if dx <= 0 {
		dx = (xMax - xMin) / float64(r.Nx)
	}
	if dy <= 0 {
		dy = (yMax - yMin) / float64(r.Ny)
	}
	nx := int(math.Ceil((xMax - xMin) / dx))
	ny := int(math.Ceil((yMax - yMin) / dy))
	return NewGrid(name, nx, ny, dx, dy, xMin, yMin, sr), nil
}

// boundaryPoints samples the outline of a raster at cell resolution.
func boundaryPoints(r *Raster) []geom.Point {
	xMax := r.X0 + float64(r.Nx)*r.Dx
	yMax := r.Y0 + float64(r.Ny)*r.Dy
	pts := make([]geom.Point, 0, 2*(r.Nx+r.Ny))
	for ix := 0; ix <= r.Nx; ix++ {
		x := r.X0 + float64(ix)*r.Dx
		pts = append(pts, geom.Point{X: x, Y: r.Y0}, geom.Point{X: x, Y: yMax})
	}
	for iy := 0; iy <= r.Ny; iy++ {
		y := r.Y0 + float64(iy)*r.Dy
		pts = append(pts, geom.Point{X: r.X0, Y: y}, geom.Point{X: xMax, Y: y})
	}
	return pts
}

// Index returns the row and column indices of point p in the grid.
// withinGrid is false if p is not within the grid. Usually there will be
// only one row and column for each point, but if the point lies on a
// shared edge among multiple grid cells, all of the overlapping cells
// are returned.
func (grid *Grid) Index(p geom.Point) (rows, cols []int, withinGrid bool) {
	for _, cI := range grid.index.SearchIntersect(p.Bounds()) {
		c := cI.(*GridCell)
		rows = append(rows, c.Row)
		cols = append(cols, c.Col)
	}
	withinGrid = len(rows) > 0
	return
}

// WriteToShp writes the grid definition to a shapefile in directory
// outdir.
func (grid *Grid) WriteToShp(outdir string) error {
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(filepath.Join(outdir, grid.Name+ext))
	}
	fields := make([]goshp.Field, 2)
	fields[0] = goshp.NumberField("row", 10)
	fields[1] = goshp.NumberField("col", 10)
	shpf, err := shp.NewEncoderFromFields(filepath.Join(outdir, grid.Name+".shp"),
		goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("gridops: writing grid shapefile: %v", err)
	}
	for _, cell := range grid.Cells {
		if err := shpf.EncodeFields(cell.Polygonal, cell.Row, cell.Col); err != nil {
			return fmt.Errorf("gridops: writing grid shapefile: %v", err)
		}
	}
	shpf.Close()

	if grid.Proj4 != "" {
		o, err := os.Create(filepath.Join(outdir, grid.Name+".prj"))
		if err != nil {
			return fmt.Errorf("gridops: writing grid prj file: %v", err)
		}
		if _, err := o.Write([]byte(grid.Proj4)); err != nil {
			return fmt.Errorf("gridops: writing grid prj file: %v", err)
		}
		o.Close()
	}
	return nil
}
