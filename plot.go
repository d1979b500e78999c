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
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/carto"
	"github.com/ctessum/plotextra"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// MapOptions adjust how DrawMap renders a raster band.
type MapOptions struct {
	// Width is the width of the map in image pixels. If it is not
	// positive, 1000 is used. The height follows from the grid aspect
	// ratio, plus room for the legend if one is drawn.
	Width int

	// Legend adds a color bar below the map, labeled with the band
	// description and units.
	Legend bool

	// HighCut gives the quantile (0 < HighCut < 1) of the data above
	// which the color scale is compressed, so that a few extreme cells
	// do not wash out the rest of the map. If it is zero the scale is
	// linear.
	HighCut float64

	// Outline polygons are drawn over the map, for example the zones
	// of an area of interest. They must be in the raster's spatial
	// reference.
	Outline []geom.Polygonal
}

// DrawMap renders the given time step of one raster band to w as a PNG
// image. Cells holding missing values are left transparent.
func DrawMap(w io.Writer, r *Raster, band string, timeIndex int, o *MapOptions) error {
	if o == nil {
		o = &MapOptions{}
	}
	b, err := r.Band(band)
	if err != nil {
		return err
	}
	if timeIndex < 0 || timeIndex >= len(r.Times) {
		return fmt.Errorf("gridops: drawing map of %s: time index %d out of range [0, %d)",
			band, timeIndex, len(r.Times))
	}
	if o.HighCut < 0 || o.HighCut >= 1 {
		return fmt.Errorf("gridops: drawing map of %s: high-cut quantile %g out of range [0, 1)",
			band, o.HighCut)
	}

	vals := make([]float64, r.Ny*r.Nx)
	var finite []float64
	for iy := 0; iy < r.Ny; iy++ {
		for ix := 0; ix < r.Nx; ix++ {
			v := b.Data.Get(timeIndex, iy, ix)
			vals[iy*r.Nx+ix] = v
			if !math.IsNaN(v) {
				finite = append(finite, v)
			}
		}
	}
	if len(finite) == 0 {
		return fmt.Errorf("gridops: drawing map of %s: no values to draw at time %v",
			band, r.Times[timeIndex])
	}

	var colorer mapColorer
	if o.HighCut > 0 {
		lo, hi := floats.Min(finite), floats.Max(finite)
		// The broken scale only helps when the cut point separates the
		// bulk of the data from a tail.
		if cut := percentile(finite, o.HighCut); cut > lo && cut < hi {
			colorer, err = newBrokenColors(lo, hi, cut)
			if err != nil {
				return fmt.Errorf("gridops: drawing map of %s: %v", band, err)
			}
		}
	}
	if colorer == nil {
		colorer = newLinearColors(finite)
	}

	west := r.X0
	east := r.X0 + float64(r.Nx)*r.Dx
	south := r.Y0
	north := r.Y0 + float64(r.Ny)*r.Dy

	width := o.Width
	if width <= 0 {
		width = 1000
	}
	height := int(float64(width) * (north - south) / (east - west))
	if height < 1 {
		height = 1
	}
	legendPx := 0
	if o.Legend {
		legendPx = width / 8
		if legendPx < 60 {
			legendPx = 60
		}
	}

	img := draw.Image(image.NewRGBA(image.Rect(0, 0, width, height+legendPx)))
	c := vgimg.NewWith(vgimg.UseImage(img))
	dc := vgdraw.New(c)

	mapCanvas := dc
	if o.Legend {
		figHeight := dc.Max.Y - dc.Min.Y
		legendHeight := figHeight * vg.Length(legendPx) / vg.Length(height+legendPx)
		mapCanvas = vgdraw.Crop(dc, 0, 0, legendHeight, 0)
		legendCanvas := vgdraw.Crop(dc, 0, 0, 0, legendHeight-figHeight)
		if err := colorer.legend(&legendCanvas, legendLabel(band, b)); err != nil {
			return fmt.Errorf("gridops: drawing map of %s: legend: %v", band, err)
		}
	}

	m := carto.NewCanvas(north, south, east, west, mapCanvas)
	for iy := 0; iy < r.Ny; iy++ {
		for ix := 0; ix < r.Nx; ix++ {
			v := vals[iy*r.Nx+ix]
			if math.IsNaN(v) {
				continue
			}
			fill, err := colorer.at(v)
			if err != nil {
				return fmt.Errorf("gridops: drawing map of %s: %v", band, err)
			}
			// Stroke each cell with its own fill color to close the
			// hairline gaps between neighboring cells.
			ls := vgdraw.LineStyle{
				Width: 0.1 * vg.Millimeter,
				Color: fill,
			}
			if err := m.DrawVector(r.CellPolygon(iy, ix), fill, ls, vgdraw.GlyphStyle{}); err != nil {
				return fmt.Errorf("gridops: drawing map of %s: %v", band, err)
			}
		}
	}

	outlineStyle := vgdraw.LineStyle{
		Width: 0.25 * vg.Millimeter,
		Color: color.Black,
	}
	var clearFill = color.NRGBA{0, 255, 0, 0}
	for _, g := range o.Outline {
		if err := m.DrawVector(g, clearFill, outlineStyle, vgdraw.GlyphStyle{}); err != nil {
			return fmt.Errorf("gridops: drawing map of %s: outline: %v", band, err)
		}
	}

	png := vgimg.PngCanvas{Canvas: c}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("gridops: drawing map of %s: %v", band, err)
	}
	Log.WithFields(logrus.Fields{
		"band":   band,
		"time":   r.Times[timeIndex],
		"width":  width,
		"height": height + legendPx,
	}).Info("rendered map")
	return nil
}

func legendLabel(band string, b *Band) string {
	label := b.Description
	if label == "" {
		label = band
	}
	if b.Units != "" {
		label += " (" + b.Units + ")"
	}
	return label
}

// mapColorer assigns colors to cell values and draws the matching
// legend.
type mapColorer interface {
	at(v float64) (color.NRGBA, error)
	legend(c *vgdraw.Canvas, label string) error
}

// linearColors colors cells on a linear scale with a cutoff for
// outliers.
type linearColors struct {
	cmap *carto.ColorMap
}

func newLinearColors(finite []float64) *linearColors {
	cmap := carto.NewColorMap(carto.LinCutoff)
	cmap.AddArray(finite)
	cmap.Set()
	return &linearColors{cmap: cmap}
}

func (l *linearColors) at(v float64) (color.NRGBA, error) {
	return l.cmap.GetColor(v), nil
}

func (l *linearColors) legend(c *vgdraw.Canvas, label string) error {
	return l.cmap.Legend(c, label)
}

// brokenColors compresses the color scale above the high-cut value,
// mapping the tail onto a separate overflow palette.
type brokenColors struct {
	cm      *plotextra.BrokenColorMap
	highCut float64
}

func newBrokenColors(min, max, highCut float64) (*brokenColors, error) {
	overflow, err := moreland.NewLuminance([]color.Color{
		color.NRGBA{G: 176, A: 255},
		color.NRGBA{G: 255, A: 255},
	})
	if err != nil {
		return nil, err
	}
	cm := &plotextra.BrokenColorMap{
		Base:     moreland.ExtendedBlackBody(),
		OverFlow: palette.Reverse(overflow),
	}
	cm.SetMin(min)
	cm.SetMax(max)
	cm.SetHighCut(highCut)
	return &brokenColors{cm: cm, highCut: highCut}, nil
}

func (bc *brokenColors) at(v float64) (color.NRGBA, error) {
	c, err := bc.cm.At(v)
	if err != nil {
		return color.NRGBA{}, err
	}
	return color.NRGBAModel.Convert(c).(color.NRGBA), nil
}

func (bc *brokenColors) legend(c *vgdraw.Canvas, label string) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Add(&plotter.ColorBar{ColorMap: bc.cm})
	p.X.Scale = plotextra.BrokenScale{
		HighCut:         bc.highCut,
		HighCutFraction: 0.9,
	}
	p.X.Tick.Marker = plotextra.BrokenTicks{
		HighCut: bc.highCut,
	}
	p.X.Label.Text = label
	p.HideY()
	p.X.Padding = 0
	p.Draw(*c)
	return nil
}

// percentile returns quantile q (range (0,1)) of the given sample.
func percentile(data []float64, q float64) float64 {
	tmp := append([]float64{}, data...)
	sort.Float64s(tmp)
	i := int(q*float64(len(tmp)) + 0.5)
	if i < 1 {
		i = 1
	}
	if i > len(tmp) {
		i = len(tmp)
	}
	return tmp[i-1]
}
