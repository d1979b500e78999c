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

package gridopsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/spatialmodel/gridops"
)

// Run executes the processing pipeline: it loads the input files, merges
// their bands, repairs the time coordinate, computes derived bands,
// aggregates hourly data to daily means, filters the time range,
// reprojects onto the target grid, crops to the area of interest, and
// writes the result. Steps without configuration are skipped.
func Run(c *RunConfig) error {
	startTime := time.Now()

	useDates := !c.Start.IsZero()
	var fileEnd time.Time
	if useDates {
		// End marks the beginning of the last day, which is processed
		// in full.
		fileEnd = c.End.AddDate(0, 0, 1)
	}

	var rasters []*gridops.Raster
	for _, file := range c.InputFiles {
		var r *gridops.Raster
		var err error
		if strings.Contains(file, "[DATE]") {
			if !useDates {
				return fmt.Errorf("gridops: input file %s contains the [DATE] wild card, "+
					"so the StartDate and EndDate configuration variables must be set", file)
			}
			r, err = gridops.ReadSeries(file, c.FileDateFormat, c.Start, fileEnd,
				c.FileInterval, c.InputVariables...)
		} else {
			r, err = gridops.ReadNetCDF(file, c.InputVariables...)
		}
		if err != nil {
			return err
		}
		rasters = append(rasters, r)
	}
	r, err := gridops.Merge(rasters...)
	if err != nil {
		return err
	}

	if c.HourlyTimes {
		if !useDates {
			return fmt.Errorf("gridops: the HourlyTimes configuration variable requires " +
				"StartDate and EndDate to be set")
		}
		if err := r.SetTimes(gridops.HourlyTimes(c.Start, len(r.Times))); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(c.DerivedBands) {
		expression := c.DerivedBands[name]
		gridops.Log.WithFields(logrus.Fields{
			"band":       name,
			"expression": expression,
		}).Info("deriving band")
		if err := r.Derive(name, "", "", expression); err != nil {
			return err
		}
	}

	if c.DailyMean {
		if r, err = gridops.DailyMean(r, c.SkipMissing); err != nil {
			return err
		}
	}

	if useDates {
		if r, err = gridops.TimeRange(r, c.Start, fileEnd.Add(-time.Second)); err != nil {
			return err
		}
	}

	var aoi *gridops.AOI
	if c.AOIFile != "" {
		if aoi, err = gridops.LoadAOI(c.AOIFile, c.AOINameField); err != nil {
			return err
		}
	}

	sr, projStr, err := targetSR(c.GridProj, aoi)
	if err != nil {
		return err
	}
	if sr != nil {
		grid, err := gridops.TemplateGrid(c.GridName, r, sr, c.GridDx, c.GridDy)
		if err != nil {
			return err
		}
		grid.Proj4 = projStr
		if r, err = gridops.Reproject(r, grid); err != nil {
			return err
		}
	}

	if aoi != nil {
		if aoi, err = aoi.TransformTo(r.SR); err != nil {
			return err
		}
		if r, err = gridops.Crop(r, aoi); err != nil {
			return err
		}
	}

	w, err := os.Create(c.OutputFile)
	if err != nil {
		return fmt.Errorf("gridops: problem creating output file: %v", err)
	}
	if err := r.Write(w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gridops: problem closing output file: %v", err)
	}

	if c.PlotFile != "" {
		band := c.PlotBand
		if band == "" {
			band = r.BandNames()[0]
		}
		o := &gridops.MapOptions{
			Width:   c.PlotWidth,
			Legend:  c.PlotLegend,
			HighCut: c.PlotHighCut,
			Outline: aoiZones(aoi),
		}
		if err := writeMap(c.PlotFile, r, band, c.PlotTimeIndex, o); err != nil {
			return err
		}
	}

	gridops.Log.WithFields(logrus.Fields{
		"output":  c.OutputFile,
		"elapsed": time.Since(startTime).String(),
	}).Info("finished pipeline")
	return nil
}

// Extract samples every band of a saved raster at the configured points
// and writes the result table.
func Extract(c *ExtractConfig) error {
	r, err := readRasterFile(c.RasterFile)
	if err != nil {
		return err
	}
	projStr := c.PointsProj
	if projStr == "" {
		projStr = gridops.LongLat
	}
	sr, err := proj.Parse(projStr)
	if err != nil {
		return fmt.Errorf("gridops: parsing the PointsProj configuration variable: %v", err)
	}
	t, err := gridops.ExtractPoints(r, c.Points, c.PointNames, sr)
	if err != nil {
		return err
	}
	return writeTable(t, c.TableFile)
}

// Zonal reduces every band of a saved raster over each zone of the area
// of interest and writes the result table.
func Zonal(c *ZonalConfig) error {
	r, err := readRasterFile(c.RasterFile)
	if err != nil {
		return err
	}
	aoi, err := gridops.LoadAOI(c.AOIFile, c.AOINameField)
	if err != nil {
		return err
	}
	if aoi, err = aoi.TransformTo(r.SR); err != nil {
		return err
	}
	t, err := gridops.ZonalStats(r, aoi, c.Statistic, c.SkipMissing)
	if err != nil {
		return err
	}
	return writeTable(t, c.TableFile)
}

// Plot renders one time step of one band of a saved raster to a PNG map.
func Plot(c *PlotConfig) error {
	r, err := readRasterFile(c.RasterFile)
	if err != nil {
		return err
	}
	band := c.Band
	if band == "" {
		band = r.BandNames()[0]
	}
	filename := c.PlotFile
	if filename == "" {
		filename = strings.TrimSuffix(c.RasterFile, filepath.Ext(c.RasterFile)) +
			"_" + band + ".png"
	}
	o := &gridops.MapOptions{
		Width:   c.Width,
		Legend:  c.Legend,
		HighCut: c.HighCut,
	}
	if err := writeMap(filename, r, band, c.TimeIndex, o); err != nil {
		return err
	}
	if c.Show {
		return open.Run(filename)
	}
	return nil
}

// WriteGrid creates the target grid that the run command would reproject
// onto and saves its cell outlines to a shapefile.
func WriteGrid(c *GridConfig) error {
	r, err := readRasterFile(c.RasterFile)
	if err != nil {
		return err
	}
	var aoi *gridops.AOI
	if c.AOIFile != "" {
		if aoi, err = gridops.LoadAOI(c.AOIFile, c.AOINameField); err != nil {
			return err
		}
	}
	sr, projStr, err := targetSR(c.Proj, aoi)
	if err != nil {
		return err
	}
	grid, err := gridops.TemplateGrid(c.Name, r, sr, c.Dx, c.Dy)
	if err != nil {
		return err
	}
	grid.Proj4 = projStr
	if err := grid.WriteToShp(c.OutputDir); err != nil {
		return err
	}
	gridops.Log.WithFields(logrus.Fields{
		"grid":   grid.Name,
		"nx":     grid.Nx,
		"ny":     grid.Ny,
		"outdir": c.OutputDir,
	}).Info("wrote grid shapefile")
	return nil
}

// targetSR returns the spatial reference that data should be reprojected
// onto, preferring an explicit grid projection over the area of
// interest's. A nil result means no target is configured.
func targetSR(gridProj string, aoi *gridops.AOI) (*proj.SR, string, error) {
	if gridProj != "" {
		sr, err := proj.Parse(gridProj)
		if err != nil {
			return nil, "", fmt.Errorf("gridops: parsing the Grid.Proj configuration variable: %v", err)
		}
		return sr, gridProj, nil
	}
	if aoi != nil {
		projStr := aoi.PRJ
		if projStr == "" {
			projStr = gridops.LongLat
		}
		return aoi.SR, projStr, nil
	}
	return nil, "", nil
}

// aoiZones returns the zone shapes of an area of interest for use as a
// map outline.
func aoiZones(aoi *gridops.AOI) []geom.Polygonal {
	if aoi == nil {
		return nil
	}
	zones := make([]geom.Polygonal, len(aoi.Zones))
	for i, z := range aoi.Zones {
		zones[i] = z.Polygonal
	}
	return zones
}

// readRasterFile reads a raster from a NetCDF file written by a previous
// pipeline run.
func readRasterFile(filename string) (*gridops.Raster, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("gridops: problem opening raster file: %v", err)
	}
	defer f.Close()
	return gridops.ReadRaster(f)
}

// writeMap renders a raster band to a PNG file.
func writeMap(filename string, r *gridops.Raster, band string, timeIndex int, o *gridops.MapOptions) error {
	w, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("gridops: problem creating plot file: %v", err)
	}
	if err := gridops.DrawMap(w, r, band, timeIndex, o); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// writeTable writes a table to the given file, choosing the format from
// the file extension, or prints it to standard output if the file name
// is empty.
func writeTable(t *gridops.Table, filename string) error {
	if filename == "" {
		fmt.Println(t.String())
		return nil
	}
	return t.WriteFile(filename)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
