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
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// tableValues indexes a four-column results table by its first three
// columns.
func tableValues(t *testing.T, tbl *Table) map[string]float64 {
	vals := make(map[string]float64, tbl.Len())
	for _, row := range tbl.Rows {
		key := fmt.Sprintf("%s|%s|%s", formatCell(row[0]), formatCell(row[1]), formatCell(row[2]))
		v, ok := row[3].(float64)
		if !ok {
			t.Fatalf("row value is a %T; want float64", row[3])
		}
		vals[key] = v
	}
	return vals
}

func TestExtractPoints(t *testing.T) {
	r := newTestRaster(t, 2)
	points := []geom.Point{
		{X: 0.25, Y: 0.25}, // center of cell (0, 0)
		{X: 1.75, Y: 1.25}, // center of cell (2, 3)
		{X: 5, Y: 5},       // outside the raster
	}
	names := []string{"sw", "ne", "out"}

	tbl, err := ExtractPoints(r, points, names, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := len(points) * 2 * 2; tbl.Len() != want {
		t.Fatalf("got %d rows; want %d", tbl.Len(), want)
	}
	if len(tbl.Columns) != 4 || tbl.Columns[0] != "point" || tbl.Columns[3] != "value" {
		t.Errorf("table columns: %v", tbl.Columns)
	}

	vals := tableValues(t, tbl)
	checks := []struct {
		key  string
		want float64
	}{
		{"sw|2020-01-01 00:00:00|t2m", 270},
		{"sw|2020-01-01 01:00:00|t2m", 271},
		{"sw|2020-01-01 00:00:00|tp", 0},
		{"ne|2020-01-01 00:00:00|t2m", 293},
		{"ne|2020-01-01 01:00:00|tp", 23},
	}
	for _, c := range checks {
		v, ok := vals[c.key]
		if !ok {
			t.Errorf("missing row %s", c.key)
			continue
		}
		if different(v, c.want, tolerance) {
			t.Errorf("%s: %g; want %g", c.key, v, c.want)
		}
	}
	for _, key := range []string{
		"out|2020-01-01 00:00:00|t2m",
		"out|2020-01-01 01:00:00|tp",
	} {
		v, ok := vals[key]
		if !ok {
			t.Errorf("missing row %s", key)
			continue
		}
		if !math.IsNaN(v) {
			t.Errorf("%s: %g; want NaN", key, v)
		}
	}
}

func TestExtractPointsNumbered(t *testing.T) {
	r := newTestRaster(t, 1)
	tbl, err := ExtractPoints(r, []geom.Point{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	vals := tableValues(t, tbl)
	if v := vals["0|2020-01-01 00:00:00|t2m"]; different(v, 270, tolerance) {
		t.Errorf("point 0: %g; want 270", v)
	}
	if v := vals["1|2020-01-01 00:00:00|t2m"]; different(v, 271, tolerance) {
		t.Errorf("point 1: %g; want 271", v)
	}
}

func TestExtractPointsTransformed(t *testing.T) {
	r := newTestRaster(t, 1)
	lcc, err := proj.Parse(testLCCProj)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := r.SR.NewTransform(lcc)
	if err != nil {
		t.Fatal(err)
	}
	// The center of cell (1, 2), given in projected coordinates.
	c := r.CellCenter(1, 2)
	x, y, err := ct(c.X, c.Y)
	if err != nil {
		t.Fatal(err)
	}

	tbl, err := ExtractPoints(r, []geom.Point{{X: x, Y: y}}, []string{"p"}, lcc)
	if err != nil {
		t.Fatal(err)
	}
	vals := tableValues(t, tbl)
	if v := vals["p|2020-01-01 00:00:00|t2m"]; different(v, 282, tolerance) {
		t.Errorf("projected point: %g; want 282", v)
	}
}

func TestExtractPointsErrors(t *testing.T) {
	r := newTestRaster(t, 1)
	if _, err := ExtractPoints(r, []geom.Point{{X: 0, Y: 0}}, []string{"a", "b"}, nil); err == nil {
		t.Error("name count mismatch: want error")
	}
}
