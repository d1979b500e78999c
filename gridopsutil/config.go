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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// dateFormat is the layout of the StartDate and EndDate configuration
// variables.
const dateFormat = "20060102"

// RunConfig holds the configuration for a pipeline run.
type RunConfig struct {
	// InputFiles are the paths to the gridded input files, possibly
	// containing the [DATE] wild card.
	InputFiles []string

	// InputVariables are the variables to read from each input file.
	// If empty, every gridded variable is read.
	InputVariables []string

	// FileDateFormat is the layout of the [DATE] wild card and
	// FileInterval is the length of time each file covers.
	FileDateFormat string
	FileInterval   time.Duration

	// Start and End bound the dates to process. End is the beginning of
	// the last day, which is processed in full.
	Start, End time.Time

	// HourlyTimes specifies whether the input time coordinate should be
	// replaced with an hourly sequence beginning at Start.
	HourlyTimes bool

	// DerivedBands maps new band names to arithmetic expressions over
	// existing band names.
	DerivedBands map[string]string

	// DailyMean specifies whether hourly time steps should be
	// aggregated into daily means, and SkipMissing whether missing
	// values are excluded from the aggregation.
	DailyMean   bool
	SkipMissing bool

	// AOIFile is the path to the area of interest and AOINameField the
	// attribute column holding zone names.
	AOIFile      string
	AOINameField string

	// GridName, GridProj, GridDx, and GridDy describe the target grid
	// that the data is reprojected onto. An empty GridProj together
	// with an empty AOIFile skips reprojection.
	GridName       string
	GridProj       string
	GridDx, GridDy float64

	// OutputFile is the path the processed raster is written to.
	OutputFile string

	// PlotFile, PlotBand, PlotTimeIndex, PlotWidth, PlotHighCut, and
	// PlotLegend configure the optional rendered map. An empty PlotFile
	// skips rendering.
	PlotFile      string
	PlotBand      string
	PlotTimeIndex int
	PlotWidth     int
	PlotHighCut   float64
	PlotLegend    bool
}

// NewRunConfig unmarshals a viper configuration for a pipeline run.
func NewRunConfig(cfg *viper.Viper) (*RunConfig, error) {
	c := RunConfig{
		InputFiles:     expandStringSlice(cfg.GetStringSlice("InputFiles")),
		InputVariables: cfg.GetStringSlice("InputVariables"),
		FileDateFormat: cfg.GetString("FileDateFormat"),
		HourlyTimes:    cfg.GetBool("HourlyTimes"),
		DerivedBands:   GetStringMapString("DerivedBands", cfg),
		DailyMean:      cfg.GetBool("DailyMean"),
		SkipMissing:    cfg.GetBool("SkipMissing"),
		AOIFile:        os.ExpandEnv(cfg.GetString("AOIFile")),
		AOINameField:   cfg.GetString("AOINameField"),
		GridName:       cfg.GetString("Grid.Name"),
		GridProj:       cfg.GetString("Grid.Proj"),
		GridDx:         cfg.GetFloat64("Grid.Dx"),
		GridDy:         cfg.GetFloat64("Grid.Dy"),
		PlotBand:       cfg.GetString("PlotBand"),
		PlotTimeIndex:  cfg.GetInt("PlotTimeIndex"),
		PlotWidth:      cfg.GetInt("PlotWidth"),
		PlotHighCut:    cfg.GetFloat64("PlotHighCut"),
		PlotLegend:     cfg.GetBool("PlotLegend"),
	}
	if len(c.InputFiles) == 0 {
		return nil, fmt.Errorf("gridops: there are no input files specified. Please fill in " +
			"the InputFiles configuration and try again.")
	}
	var err error
	c.OutputFile, err = checkOutputFile(cfg.GetString("OutputFile"))
	if err != nil {
		return nil, err
	}
	if f := cfg.GetString("PlotFile"); f != "" {
		c.PlotFile, err = checkOutputFile(f)
		if err != nil {
			return nil, err
		}
	}
	c.Start, err = parseDate(cfg.GetString("StartDate"))
	if err != nil {
		return nil, fmt.Errorf("gridops: parsing StartDate: %v", err)
	}
	c.End, err = parseDate(cfg.GetString("EndDate"))
	if err != nil {
		return nil, fmt.Errorf("gridops: parsing EndDate: %v", err)
	}
	if c.Start.IsZero() != c.End.IsZero() {
		return nil, fmt.Errorf("gridops: StartDate and EndDate must either both be specified or both be empty")
	}
	if !c.Start.IsZero() && c.End.Before(c.Start) {
		return nil, fmt.Errorf("gridops: EndDate %v is before StartDate %v",
			c.End.Format(dateFormat), c.Start.Format(dateFormat))
	}
	if s := cfg.GetString("FileInterval"); s != "" {
		c.FileInterval, err = time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("gridops: parsing FileInterval: %v", err)
		}
	}
	return &c, nil
}

// ExtractConfig holds the configuration for point extraction.
type ExtractConfig struct {
	// RasterFile is the path to the raster the points are extracted
	// from.
	RasterFile string

	// PointNames and Points are the names and locations of the
	// extraction points, in the spatial reference given by PointsProj
	// (or longitude/latitude if PointsProj is empty).
	PointNames []string
	Points     []geom.Point
	PointsProj string

	// TableFile is the path the result table is written to. If it is
	// empty the table is printed to standard output.
	TableFile string
}

// NewExtractConfig unmarshals a viper configuration for point extraction.
func NewExtractConfig(cfg *viper.Viper) (*ExtractConfig, error) {
	c := ExtractConfig{
		RasterFile: os.ExpandEnv(cfg.GetString("RasterFile")),
		PointsProj: cfg.GetString("PointsProj"),
	}
	var err error
	c.PointNames, c.Points, err = parsePoints(cfg.GetStringSlice("Points"))
	if err != nil {
		return nil, err
	}
	if len(c.Points) == 0 {
		return nil, fmt.Errorf("gridops: there are no points specified. Please fill in " +
			"the Points configuration and try again.")
	}
	if f := cfg.GetString("TableFile"); f != "" {
		c.TableFile, err = checkOutputFile(f)
		if err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// ZonalConfig holds the configuration for zonal statistics.
type ZonalConfig struct {
	// RasterFile is the path to the raster the statistics are computed
	// from, and AOIFile and AOINameField describe the zones they are
	// computed over.
	RasterFile   string
	AOIFile      string
	AOINameField string

	// Statistic is the reduction applied over the cells of each zone
	// and SkipMissing specifies whether missing values are excluded
	// from it.
	Statistic   string
	SkipMissing bool

	// TableFile is the path the result table is written to. If it is
	// empty the table is printed to standard output.
	TableFile string
}

// NewZonalConfig unmarshals a viper configuration for zonal statistics.
func NewZonalConfig(cfg *viper.Viper) (*ZonalConfig, error) {
	c := ZonalConfig{
		RasterFile:   os.ExpandEnv(cfg.GetString("RasterFile")),
		AOIFile:      os.ExpandEnv(cfg.GetString("AOIFile")),
		AOINameField: cfg.GetString("AOINameField"),
		Statistic:    cfg.GetString("Statistic"),
		SkipMissing:  cfg.GetBool("SkipMissing"),
	}
	if c.AOIFile == "" {
		return nil, fmt.Errorf("gridops: there is no area of interest specified. Please fill in " +
			"the AOIFile configuration and try again.")
	}
	if f := cfg.GetString("TableFile"); f != "" {
		var err error
		c.TableFile, err = checkOutputFile(f)
		if err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// PlotConfig holds the configuration for rendering a map.
type PlotConfig struct {
	// RasterFile is the path to the raster to render and PlotFile the
	// path the image is written to. An empty PlotFile derives the path
	// from RasterFile and the band name.
	RasterFile string
	PlotFile   string

	// Band, TimeIndex, Width, HighCut, and Legend configure the
	// rendering. An empty Band renders the first band.
	Band      string
	TimeIndex int
	Width     int
	HighCut   float64
	Legend    bool

	// Show specifies whether to open the image after writing it.
	Show bool
}

// NewPlotConfig unmarshals a viper configuration for rendering a map.
func NewPlotConfig(cfg *viper.Viper) (*PlotConfig, error) {
	c := PlotConfig{
		RasterFile: os.ExpandEnv(cfg.GetString("RasterFile")),
		Band:       cfg.GetString("PlotBand"),
		TimeIndex:  cfg.GetInt("PlotTimeIndex"),
		Width:      cfg.GetInt("PlotWidth"),
		HighCut:    cfg.GetFloat64("PlotHighCut"),
		Legend:     cfg.GetBool("PlotLegend"),
		Show:       cfg.GetBool("show"),
	}
	if f := cfg.GetString("PlotFile"); f != "" {
		var err error
		c.PlotFile, err = checkOutputFile(f)
		if err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// GridConfig holds the configuration for writing the target grid to a
// shapefile.
type GridConfig struct {
	// RasterFile is the path to the raster the grid extent is derived
	// from.
	RasterFile string

	// Name, Proj, Dx, and Dy describe the grid, matching the Grid
	// options of the run command. The projection comes from Proj, or
	// from AOIFile if Proj is empty.
	Name         string
	Proj         string
	AOIFile      string
	AOINameField string
	Dx, Dy       float64

	// OutputDir is the directory the shapefile is written to.
	OutputDir string
}

// NewGridConfig unmarshals a viper configuration for writing the target
// grid.
func NewGridConfig(cfg *viper.Viper) (*GridConfig, error) {
	c := GridConfig{
		RasterFile:   os.ExpandEnv(cfg.GetString("RasterFile")),
		Name:         cfg.GetString("Grid.Name"),
		Proj:         cfg.GetString("Grid.Proj"),
		AOIFile:      os.ExpandEnv(cfg.GetString("AOIFile")),
		AOINameField: cfg.GetString("AOINameField"),
		Dx:           cfg.GetFloat64("Grid.Dx"),
		Dy:           cfg.GetFloat64("Grid.Dy"),
		OutputDir:    os.ExpandEnv(cfg.GetString("Grid.OutputDir")),
	}
	if c.Proj == "" && c.AOIFile == "" {
		return nil, fmt.Errorf("gridops: the grid projection is not specified. Please fill in " +
			"the Grid.Proj or AOIFile configuration and try again.")
	}
	if _, err := os.Stat(c.OutputDir); err != nil {
		return nil, fmt.Errorf("gridops: the Grid.OutputDir directory doesn't exist: %v", err)
	}
	return &c, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.nc"`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("gridops: the output file directory doesn't exist: %v", err)
	}
	return f, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// parseDate parses a date in YYYYMMDD format, returning the zero time
// for an empty string.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateFormat, s)
}

// parsePoints parses point definitions of the form "name,x,y" or "x,y";
// points without a name are numbered.
func parsePoints(defs []string) ([]string, []geom.Point, error) {
	names := make([]string, len(defs))
	points := make([]geom.Point, len(defs))
	for i, def := range defs {
		fields := strings.Split(def, ",")
		switch len(fields) {
		case 2:
			names[i] = strconv.Itoa(i)
		case 3:
			names[i] = strings.TrimSpace(fields[0])
			fields = fields[1:]
		default:
			return nil, nil, fmt.Errorf("gridops: point %d: %q is not in the form \"name,x,y\" or \"x,y\"", i, def)
		}
		x, err := cast.ToFloat64E(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, nil, fmt.Errorf("gridops: point %d: parsing x coordinate: %v", i, err)
		}
		y, err := cast.ToFloat64E(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, nil, fmt.Errorf("gridops: point %d: parsing y coordinate: %v", i, err)
		}
		points[i] = geom.Point{X: x, Y: y}
	}
	return names, points, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for GetStringMapString variable %s: %#v", varName, i))
	}
}
