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

// Package gridopsutil wires the gridops pipeline operations to
// configuration handling and the gridops command-line tool.
package gridopsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to GridOps.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path of a file that log messages should be
              written to in addition to standard error. It can include
              environment variables. If it is empty, logs only go to
              standard error.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InputFiles",
			usage: `
              InputFiles are the paths to the gridded input data files.
              [DATE] can be used as a wild card for the file date, to be
              expanded for every date between StartDate and EndDate. The
              paths can include environment variables.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "InputVariables",
			usage: `
              InputVariables are the names of the variables to read from
              each input file. If none are given, every gridded variable
              is read.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FileDateFormat",
			usage: `
              FileDateFormat is the format of the [DATE] wild card in
              InputFiles, expressed as a Go reference-time layout such as
              20060102.`,
			defaultVal: "20060102",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FileInterval",
			usage: `
              FileInterval is the length of time covered by each input
              file in a [DATE] series, for example 24h.`,
			defaultVal: "24h",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the first date of the time range to process.
              Format = "YYYYMMDD".`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "EndDate",
			usage: `
              EndDate is the last date (inclusive) of the time range to
              process. Format = "YYYYMMDD".`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "HourlyTimes",
			usage: `
              HourlyTimes replaces the time coordinate of the merged
              input data with an hourly sequence beginning at StartDate.
              Use it when input files carry a broken or placeholder time
              coordinate.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DerivedBands",
			usage: `
              DerivedBands maps the names of new bands to arithmetic
              expressions over existing band names, for example
              {"t2m_C": "t2m - 273.15"}. Derived bands behave like loaded
              bands in all later steps.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DailyMean",
			usage: `
              DailyMean aggregates the hourly time steps of each band
              into daily means.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "SkipMissing",
			usage: `
              SkipMissing excludes missing values from aggregations and
              zonal statistics instead of letting them make the result
              missing.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), zonalCmd.Flags()},
		},
		{
			name: "AOIFile",
			usage: `
              AOIFile is the path to the area of interest, either a
              shapefile or a GeoJSON file. The area of interest is used
              for cropping, for zonal statistics, and as the source of
              the target spatial reference when Grid.Proj is empty. The
              path can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), zonalCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "AOINameField",
			usage: `
              AOINameField is the name of the shapefile attribute column
              holding the name of each zone in the area of interest. If
              it is empty the zones are numbered.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), zonalCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Grid.Name",
			usage: `
              Grid.Name is the name of the target grid that data is
              reprojected onto.`,
			defaultVal: "grid",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Grid.Proj",
			usage: `
              Grid.Proj gives the projection of the target grid in Proj4
              or WKT format. If it is empty, the projection is taken from
              the area of interest.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Grid.Dx",
			usage: `
              Grid.Dx is the target grid cell edge length in the x
              direction, in the units of the grid projection. If it is
              not positive, the cell size is derived from the input
              grid.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Grid.Dy",
			usage: `
              Grid.Dy is the target grid cell edge length in the y
              direction, in the units of the grid projection. If it is
              not positive, the cell size is derived from the input
              grid.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Grid.OutputDir",
			usage: `
              Grid.OutputDir is the directory that the grid command
              writes the target grid shapefile to.`,
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{gridCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path that the processed raster is written
              to as a NetCDF file. It can include environment
              variables.`,
			defaultVal: "gridops_output.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "RasterFile",
			usage: `
              RasterFile is the path to a raster NetCDF file written by a
              previous run, used as the input for extraction, zonal
              statistics, plotting, and grid templating. It can include
              environment variables.`,
			defaultVal: "gridops_output.nc",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), zonalCmd.Flags(), plotCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Points",
			usage: `
              Points are the locations that band values are extracted at,
              each in the form "name,x,y" (or "x,y" to number the points
              instead).`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "PointsProj",
			usage: `
              PointsProj gives the spatial reference of the extraction
              points in Proj4 or WKT format. If it is empty the points
              are taken to be geographic longitude/latitude
              coordinates.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "TableFile",
			usage: `
              TableFile is the path that the result table is written to.
              The extension chooses the format: .csv, .shp, or .xlsx. If
              it is empty the table is printed to standard output.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), zonalCmd.Flags()},
		},
		{
			name: "Statistic",
			usage: `
              Statistic is the reduction that zonal statistics applies
              over the cells of each zone: mean, min, max, sum, stddev,
              or count.`,
			defaultVal: "mean",
			flagsets:   []*pflag.FlagSet{zonalCmd.Flags()},
		},
		{
			name: "PlotFile",
			usage: `
              PlotFile is the path that the rendered map is written to as
              a PNG image. For the run command, an empty value skips
              rendering; for the plot command, an empty value derives the
              path from RasterFile and the band name.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "PlotBand",
			usage: `
              PlotBand is the name of the band to render. If it is empty
              the first band is rendered.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "PlotTimeIndex",
			usage: `
              PlotTimeIndex is the index of the time step to render.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "PlotWidth",
			usage: `
              PlotWidth is the width of the rendered map in pixels.`,
			defaultVal: 1000,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "PlotHighCut",
			usage: `
              PlotHighCut compresses the map color scale above this
              quantile (0 < PlotHighCut < 1) so that a few extreme cells
              do not wash out the rest of the map. Zero keeps a linear
              scale.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "PlotLegend",
			usage: `
              PlotLegend adds a color bar below the rendered map.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "show",
			usage: `
              show opens the rendered map in the default image viewer
              after it is written.`,
			shorthand:  "s",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{plotCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("GRIDOPS")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(extractCmd)
	Root.AddCommand(zonalCmd)
	Root.AddCommand(plotCmd)
	Root.AddCommand(gridCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("gridops: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// setLogFile directs log output to LogFile in addition to standard
// error, if LogFile is set.
func setLogFile() error {
	logFile := os.ExpandEnv(Cfg.GetString("LogFile"))
	if logFile == "" {
		return nil
	}
	f, err := os.Create(logFile)
	if err != nil {
		return fmt.Errorf("gridops: problem creating log file: %v", err)
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "gridops",
	Short: "A gridded climate-data processing pipeline.",
	Long: `GridOps reads gridded climate data, merges and derives bands, aggregates
and filters time steps, reprojects the result onto a target grid, crops it to
an area of interest, and extracts point and zonal values from it.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'GRIDOPS_var'
where 'var' is the name of the variable to be set. Many configuration
variables are additionally allowed to contain environment variables within
them. Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if err := setConfig(); err != nil {
			return err
		}
		return setLogFile()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of GridOps.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("GridOps v%s\n", gridops.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd is a command that runs the full processing pipeline.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the processing pipeline.",
	Long: `run loads the input files, merges their bands, repairs the time
coordinate, computes derived bands, aggregates hourly data to daily means,
filters the time range, reprojects onto the target grid, crops to the area of
interest, and writes the processed raster (and optionally a rendered map).
Steps without configuration are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := NewRunConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(c)
	},
	DisableAutoGenTag: true,
}

// extractCmd is a command that extracts band values at points.
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract band values at points.",
	Long: `extract samples every band of a processed raster at the configured
points, producing a table with one row per point, time step, and band.
Points outside the raster yield missing values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := NewExtractConfig(Cfg)
		if err != nil {
			return err
		}
		return Extract(c)
	},
	DisableAutoGenTag: true,
}

// zonalCmd is a command that reduces band values over zones.
var zonalCmd = &cobra.Command{
	Use:   "zonal",
	Short: "Compute zonal statistics.",
	Long: `zonal reduces every band of a processed raster over each zone of the
area of interest, producing a table with one row per zone, time step, and
band.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := NewZonalConfig(Cfg)
		if err != nil {
			return err
		}
		return Zonal(c)
	},
	DisableAutoGenTag: true,
}

// plotCmd is a command that renders a raster band to a PNG image.
var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render a raster band to a map image.",
	Long: `plot renders one time step of one band of a processed raster to a PNG
map, optionally opening the result in the default image viewer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := NewPlotConfig(Cfg)
		if err != nil {
			return err
		}
		return Plot(c)
	},
	DisableAutoGenTag: true,
}

// gridCmd is a command that writes the target grid to a shapefile.
var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Write the target grid to a shapefile",
	Long: `grid creates the target grid that the run command would reproject
onto and saves its cell outlines to a shapefile for inspection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := NewGridConfig(Cfg)
		if err != nil {
			return err
		}
		return WriteGrid(c)
	},
	DisableAutoGenTag: true,
}
