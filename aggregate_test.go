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
	"math"
	"testing"
	"time"
)

func TestDailyMean(t *testing.T) {
	r := newTestRaster(t, 48)

	daily, err := DailyMean(r, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(daily.Times) != 2 {
		t.Fatalf("got %d days; want 2", len(daily.Times))
	}
	for i, wantDay := range []time.Time{
		time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC),
	} {
		if !daily.Times[i].Equal(wantDay) {
			t.Errorf("day %d: %v; want %v", i, daily.Times[i], wantDay)
		}
	}

	// t2m is 270 + ix + 10*iy + it, so the mean over hours 0-23 adds
	// 11.5 to the spatial part, and hours 24-47 add 35.5.
	b, err := daily.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	for iy := 0; iy < 3; iy++ {
		for ix := 0; ix < 4; ix++ {
			base := 270 + float64(ix) + 10*float64(iy)
			if v := b.Data.Get(0, iy, ix); different(v, base+11.5, tolerance) {
				t.Errorf("day 0 cell (%d, %d): %g; want %g", iy, ix, v, base+11.5)
			}
			if v := b.Data.Get(1, iy, ix); different(v, base+35.5, tolerance) {
				t.Errorf("day 1 cell (%d, %d): %g; want %g", iy, ix, v, base+35.5)
			}
		}
	}

	if daily.Nx != r.Nx || daily.Ny != r.Ny || daily.X0 != r.X0 || daily.Dx != r.Dx {
		t.Error("daily raster geometry differs from input")
	}
	if daily.Proj4 != r.Proj4 {
		t.Errorf("daily Proj4: %s", daily.Proj4)
	}
	if names := daily.BandNames(); len(names) != 2 {
		t.Errorf("daily band names: %v", names)
	}
}

func TestDailyMeanPartialDays(t *testing.T) {
	// 30 hourly steps span one full day plus six hours of the next.
	r := newTestRaster(t, 30)
	daily, err := DailyMean(r, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(daily.Times) != 2 {
		t.Fatalf("got %d days; want 2", len(daily.Times))
	}
	b, err := daily.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	// Day 2 has samples for hours 24-29, it offsets 24..29, mean 26.5.
	if v := b.Data.Get(1, 0, 0); different(v, 270+26.5, tolerance) {
		t.Errorf("partial day mean: %g; want %g", v, 270+26.5)
	}
}

func TestDailyMeanMissing(t *testing.T) {
	r := newTestRaster(t, 24)
	b, err := r.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	// Cell (0, 0) is missing at one hour; cell (1, 1) is missing at
	// every hour.
	b.Data.Set(math.NaN(), 3, 0, 0)
	for it := 0; it < 24; it++ {
		b.Data.Set(math.NaN(), it, 1, 1)
	}

	strict, err := DailyMean(r, false)
	if err != nil {
		t.Fatal(err)
	}
	sb, err := strict.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(sb.Data.Get(0, 0, 0)) {
		t.Error("strict mean over a missing sample is not missing")
	}
	if math.IsNaN(sb.Data.Get(0, 0, 1)) {
		t.Error("strict mean of a complete cell is missing")
	}

	skip, err := DailyMean(r, true)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := skip.Band("t2m")
	if err != nil {
		t.Fatal(err)
	}
	// With hour 3 excluded, the mean of it offsets {0..23}\{3} is
	// (276 - 3) / 23.
	want := 270 + (276.0-3.0)/23.0
	if v := kb.Data.Get(0, 0, 0); different(v, want, tolerance) {
		t.Errorf("skip-missing mean: %g; want %g", v, want)
	}
	if !math.IsNaN(kb.Data.Get(0, 1, 1)) {
		t.Error("mean of an all-missing cell is not missing")
	}
	if v := kb.Data.Get(0, 0, 1); different(v, 270+1+11.5, tolerance) {
		t.Errorf("complete cell mean: %g; want %g", v, 270+1+11.5)
	}
}

func TestDailyMeanUnsorted(t *testing.T) {
	// Day labels must come out sorted even if a later time step belongs
	// to an earlier day. Build a raster whose single band distinguishes
	// the steps, then reorder its times via a fresh raster.
	times := []time.Time{
		time.Date(2020, time.January, 2, 6, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 1, 6, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 1, 18, 0, 0, 0, time.UTC),
	}
	r := newTestRaster(t, 3)
	r.Times = times

	daily, err := DailyMean(r, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(daily.Times) != 2 {
		t.Fatalf("got %d days; want 2", len(daily.Times))
	}
	if !daily.Times[0].Before(daily.Times[1]) {
		t.Errorf("days not sorted: %v", daily.Times)
	}
	b, err := daily.Band("tp")
	if err != nil {
		t.Fatal(err)
	}
	// tp holds the flat index, so steps 1 and 2 (January 1) average to
	// 1.5 planes above the base plane and step 0 (January 2) is the
	// base plane itself.
	if v := b.Data.Get(0, 0, 0); different(v, 18, tolerance) {
		t.Errorf("January 1 mean: %g; want 18", v)
	}
	if v := b.Data.Get(1, 0, 0); v != 0 {
		t.Errorf("January 2 mean: %g; want 0", v)
	}
}
