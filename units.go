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
	"strings"

	"github.com/ctessum/unit"
)

// cfUnits maps the unit strings that appear in climate data files to
// dimensioned units. Only unscaled SI units are listed; a scaled unit
// like "hPa" cannot be represented here without silently changing the
// meaning of the values.
var cfUnits = map[string]unit.Dimensions{
	"":         unit.Dimless,
	"1":        unit.Dimless,
	"-":        unit.Dimless,
	"(0 - 1)":  unit.Dimless,
	"fraction": unit.Dimless,
	"m":        unit.Meter,
	"meter":    unit.Meter,
	"meters":   unit.Meter,
	"metre":    unit.Meter,
	"metres":   unit.Meter,
	"m of water equivalent": unit.Meter,
	"m**2":     unit.Meter2,
	"m2":       unit.Meter2,
	"K":        unit.Kelvin,
	"kelvin":   unit.Kelvin,
	"kg":       unit.Kilogram,
	"s":        unit.Second,
	"second":   unit.Second,
	"seconds":  unit.Second,
	"Pa":       unit.Pascal,
	"m s**-1":  unit.MeterPerSecond,
	"m s-1":    unit.MeterPerSecond,
	"m/s":      unit.MeterPerSecond,
	"kg m**-2": {unit.MassDim: 1, unit.LengthDim: -2},
	"kg m**-2 s**-1": {unit.MassDim: 1, unit.LengthDim: -2, unit.TimeDim: -1},
	"W m**-2":  {unit.MassDim: 1, unit.TimeDim: -3},
	"J m**-2":  {unit.MassDim: 1, unit.TimeDim: -2},
}

// parseUnit converts a unit string from a climate data file into a
// dimensioned unit.
func parseUnit(s string) (*unit.Unit, error) {
	key := strings.TrimSpace(s)
	if d, ok := cfUnits[key]; ok {
		return unit.New(1, d), nil
	}
	if d, ok := cfUnits[strings.ToLower(key)]; ok {
		return unit.New(1, d), nil
	}
	return nil, fmt.Errorf("gridops: unrecognized units '%s'", s)
}

// deriveUnits infers the units of a derived band for simple two-band
// expressions such as "a/b" or "a*b". It returns an empty string when
// the units cannot be inferred; dimensionless results also format as an
// empty string.
func deriveUnits(expression string, r *Raster) string {
	for _, op := range []string{"/", "*", "+", "-"} {
		parts := strings.Split(expression, op)
		if len(parts) != 2 {
			continue
		}
		a, errA := r.Band(strings.TrimSpace(parts[0]))
		b, errB := r.Band(strings.TrimSpace(parts[1]))
		if errA != nil || errB != nil {
			continue
		}
		ua, errA := parseUnit(a.Units)
		ub, errB := parseUnit(b.Units)
		if errA != nil || errB != nil {
			return ""
		}
		switch op {
		case "/":
			return unit.Div(ua, ub).Dimensions().String()
		case "*":
			return unit.Mul(ua, ub).Dimensions().String()
		default:
			if !ua.Dimensions().Matches(ub.Dimensions()) {
				return ""
			}
			return ua.Dimensions().String()
		}
	}
	return ""
}
