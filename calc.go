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

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
)

// defaultCalcFuncs returns the functions available to band expressions.
func defaultCalcFuncs() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"sqrt": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("gridops: got %d arguments for function 'sqrt', but needs 1", len(arg))
			}
			return (float64)(math.Sqrt(arg[0].(float64))), nil
		},
		"abs": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("gridops: got %d arguments for function 'abs', but needs 1", len(arg))
			}
			return (float64)(math.Abs(arg[0].(float64))), nil
		},
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("gridops: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			return (float64)(math.Exp(arg[0].(float64))), nil
		},
		"log": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("gridops: got %d arguments for function 'log', but needs 1", len(arg))
			}
			return (float64)(math.Log(arg[0].(float64))), nil
		},
		"log10": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("gridops: got %d arguments for function 'log10', but needs 1", len(arg))
			}
			return (float64)(math.Log10(arg[0].(float64))), nil
		},
		"pow": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("gridops: got %d arguments for function 'pow', but needs 2", len(args))
			}
			return (float64)(math.Pow(args[0].(float64), args[1].(float64))), nil
		},
		"min": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("gridops: got %d arguments for function 'min', but needs 2", len(args))
			}
			return (float64)(math.Min(args[0].(float64), args[1].(float64))), nil
		},
		"max": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("gridops: got %d arguments for function 'max', but needs 2", len(args))
			}
			return (float64)(math.Max(args[0].(float64), args[1].(float64))), nil
		},
	}
}

// Derive adds a band named name that is computed from the raster's
// existing bands by evaluating expression once per cell. Variables in
// the expression refer to bands of the same name, so "tp / t2m" adds a
// band holding the cellwise ratio of bands tp and t2m. Expressions can
// also use the functions 'sqrt(x)', 'abs(x)', 'exp(x)', 'log(x)',
// 'log10(x)', 'pow(x, y)', 'min(x, y)', and 'max(x, y)'.
//
// Where the result is not a finite number, for example from dividing by
// zero or operating on a missing value, the derived band holds a
// missing value (NaN) rather than an infinity. The derived band behaves
// exactly like a loaded band in later operations.
//
// If units is empty, Derive infers the units of simple products and
// ratios from the operand bands.
func (r *Raster) Derive(name, description, units, expression string) error {
	if _, ok := r.bands[name]; ok {
		return fmt.Errorf("gridops: raster already has a band named '%s'", name)
	}
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, defaultCalcFuncs())
	if err != nil {
		return fmt.Errorf("gridops: parsing expression '%s': %v", expression, err)
	}
	vars := removeDuplicates(expr.Vars())
	operands := make([]*sparse.DenseArray, len(vars))
	for i, v := range vars {
		b, err := r.Band(v)
		if err != nil {
			return fmt.Errorf("gridops: expression '%s': %v", expression, err)
		}
		operands[i] = b.Data
	}
	d := sparse.ZerosDense(len(r.Times), r.Ny, r.Nx)
	params := make(map[string]interface{}, len(vars))
	for i := range d.Elements {
		for j, v := range vars {
			params[v] = operands[j].Elements[i]
		}
		result, err := expr.Evaluate(params)
		if err != nil {
			return fmt.Errorf("gridops: evaluating expression '%s': %v", expression, err)
		}
		v, ok := result.(float64)
		if !ok {
			return fmt.Errorf("gridops: expression '%s' returned %T; want a number", expression, result)
		}
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		d.Elements[i] = v
	}
	if units == "" {
		units = deriveUnits(expression, r)
	}
	return r.AddBand(name, description, units, d)
}

// removeDuplicates removes all duplicated strings from a slice, returning
// a slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]string)
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = val
		}
	}
	return result
}
