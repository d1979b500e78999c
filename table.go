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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/tealeg/xlsx"
)

// timeFormat is how timestamps are written in tabular output.
const timeFormat = "2006-01-02 15:04:05"

// Table holds tabular results such as point extractions or zonal
// statistics. Cell values are strings, timestamps, or numbers; missing
// numbers are NaN and are written as empty cells.
type Table struct {
	Columns []string
	Rows    [][]interface{}

	geoms []geom.Geom

	// PRJ optionally holds a projection definition written alongside
	// shapefile output.
	PRJ string
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// AddRow appends a row to the table. g optionally gives the shape the
// row describes, for spatial output formats; it may be nil.
func (t *Table) AddRow(g geom.Geom, vals ...interface{}) error {
	if len(vals) != len(t.Columns) {
		return fmt.Errorf("gridops: table row has %d values; want %d", len(vals), len(t.Columns))
	}
	t.Rows = append(t.Rows, vals)
	t.geoms = append(t.geoms, g)
	return nil
}

// Len returns the number of rows in the table.
func (t *Table) Len() int { return len(t.Rows) }

func formatCell(v interface{}) string {
	switch c := v.(type) {
	case string:
		return c
	case time.Time:
		return c.UTC().Format(timeFormat)
	case float64:
		if math.IsNaN(c) {
			return ""
		}
		return strconv.FormatFloat(c, 'g', -1, 64)
	case int:
		return strconv.Itoa(c)
	default:
		return fmt.Sprint(c)
	}
}

// String renders the table as aligned text for inspection.
func (t *Table) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return b.String()
}

// WriteCSV writes the table in CSV format.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("gridops: writing table: %v", err)
	}
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		if err := cw.Write(cells); err != nil {
			return fmt.Errorf("gridops: writing table: %v", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the table as a Microsoft Excel file.
func (t *Table) WriteXLSX(w io.Writer) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("results")
	if err != nil {
		return fmt.Errorf("gridops: writing table: %v", err)
	}
	header := sheet.AddRow()
	for _, c := range t.Columns {
		header.AddCell().SetString(c)
	}
	for _, row := range t.Rows {
		r := sheet.AddRow()
		for _, v := range row {
			cell := r.AddCell()
			switch c := v.(type) {
			case float64:
				if math.IsNaN(c) {
					cell.SetString("")
				} else {
					cell.SetFloat(c)
				}
			case int:
				cell.SetInt(c)
			default:
				cell.SetString(formatCell(v))
			}
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("gridops: writing table: %v", err)
	}
	return nil
}

// WriteShp writes the table as a shapefile using each row's shape. It is
// an error for a table without shapes. Column names longer than the
// 10-character shapefile field limit are an error.
func (t *Table) WriteShp(filename string) error {
	fileBase := strings.TrimSuffix(filename, filepath.Ext(filename))
	fields := make([]goshp.Field, len(t.Columns))
	for i, c := range t.Columns {
		if len(c) > 10 {
			return fmt.Errorf("gridops: column name '%s' exceeds 10 characters", c)
		}
		fields[i] = t.shpField(i, c)
	}
	shapeType, err := t.shpType()
	if err != nil {
		return err
	}
	shape, err := shp.NewEncoderFromFields(fileBase+".shp", shapeType, fields...)
	if err != nil {
		return fmt.Errorf("gridops: creating output shapefile: %v", err)
	}
	for j, row := range t.Rows {
		if t.geoms[j] == nil {
			return fmt.Errorf("gridops: table row %d has no shape", j)
		}
		outFields := make([]interface{}, len(row))
		for i, v := range row {
			switch c := v.(type) {
			case float64, int:
				outFields[i] = c
			default:
				outFields[i] = formatCell(v)
			}
		}
		if err := shape.EncodeFields(t.geoms[j], outFields...); err != nil {
			return fmt.Errorf("gridops: writing output shapefile: %v", err)
		}
	}
	shape.Close()

	if t.PRJ != "" {
		f, err := os.Create(fileBase + ".prj")
		if err != nil {
			return fmt.Errorf("gridops: creating output prj file: %v", err)
		}
		fmt.Fprint(f, t.PRJ)
		f.Close()
	}
	return nil
}

// shpField picks a shapefile field type from the values in a column.
func (t *Table) shpField(col int, name string) goshp.Field {
	for _, row := range t.Rows {
		switch row[col].(type) {
		case float64:
			return goshp.FloatField(name, 14, 8)
		case int:
			return goshp.NumberField(name, 10)
		case string, time.Time:
			return goshp.StringField(name, 32)
		}
	}
	return goshp.StringField(name, 32)
}

// shpType picks the shapefile geometry type from the table's shapes.
func (t *Table) shpType() (goshp.ShapeType, error) {
	for _, g := range t.geoms {
		switch g.(type) {
		case geom.Point, geom.MultiPoint:
			return goshp.POINT, nil
		case geom.Polygon, geom.MultiPolygon:
			return goshp.POLYGON, nil
		case geom.LineString, geom.MultiLineString:
			return goshp.POLYLINE, nil
		case nil:
			continue
		default:
			return 0, fmt.Errorf("gridops: unsupported shape type %T for shapefile output", g)
		}
	}
	return 0, fmt.Errorf("gridops: table has no shapes for shapefile output")
}

// WriteFile writes the table to a file in the format given by the file
// extension: .csv, .xlsx, or .shp.
func (t *Table) WriteFile(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		f, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("gridops: creating %s: %v", filename, err)
		}
		defer f.Close()
		return t.WriteCSV(f)
	case ".xlsx":
		f, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("gridops: creating %s: %v", filename, err)
		}
		defer f.Close()
		return t.WriteXLSX(f)
	case ".shp":
		return t.WriteShp(filename)
	default:
		return fmt.Errorf("gridops: unsupported table file type '%s'", filepath.Ext(filename))
	}
}
