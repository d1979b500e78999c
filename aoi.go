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
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/requestcache"
	"github.com/spatialmodel/gridops/internal/hash"
)

// Zone is one named polygon within an area of interest.
type Zone struct {
	geom.Polygonal
	Name string
}

// AOI is an area of interest made up of one or more polygon zones
// sharing a spatial reference. It is used for cropping rasters, for
// zonal statistics, and as the source of a pipeline's target spatial
// reference.
type AOI struct {
	Zones []*Zone
	SR    *proj.SR

	// PRJ holds the raw contents of the shapefile's .prj sidecar, when
	// there is one, so outputs in the same spatial reference can carry
	// the authoritative projection definition.
	PRJ string
}

// aoiCache holds previously loaded areas of interest to avoid reading
// the same file multiple times.
var aoiCache *requestcache.Cache

var loadAOICacheOnce sync.Once

type aoiRequest struct {
	Filename, NameField string
}

// LoadAOI loads an area of interest from a shapefile or GeoJSON file,
// utilizing a cache to avoid reading the same file more than once. For
// shapefiles, nameField names the attribute column holding zone names;
// if it is empty the zones are numbered instead. GeoJSON files carry no
// spatial reference and are taken to hold geographic coordinates.
func LoadAOI(filename, nameField string) (*AOI, error) {
	loadAOICacheOnce.Do(func() {
		aoiCache = requestcache.NewCache(func(ctx context.Context, req interface{}) (interface{}, error) {
			r := req.(aoiRequest)
			switch strings.ToLower(filepath.Ext(r.Filename)) {
			case ".shp":
				return readAOIShp(r.Filename, r.NameField)
			case ".geojson", ".json":
				return readAOIGeoJSON(r.Filename)
			default:
				return nil, fmt.Errorf("gridops: unsupported area of interest file type '%s'",
					filepath.Ext(r.Filename))
			}
		}, runtime.GOMAXPROCS(-1), requestcache.Memory(10))
	})
	req := aoiRequest{Filename: filename, NameField: nameField}
	r := aoiCache.NewRequest(context.Background(), req, "aoi_"+hash.Hash(req))
	aI, err := r.Result()
	if err != nil {
		return nil, err
	}
	return aI.(*AOI), nil
}

func readAOIShp(filename, nameField string) (*AOI, error) {
	dec, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, fmt.Errorf("gridops: opening area of interest %s: %v", filename, err)
	}
	defer dec.Close()
	sr, err := dec.SR()
	if err != nil {
		return nil, fmt.Errorf("gridops: reading projection of %s: %v", filename, err)
	}
	var fieldNames []string
	if nameField != "" {
		fieldNames = []string{nameField}
	}
	aoi := &AOI{SR: sr}
	prjName := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".prj"
	if prj, err := ioutil.ReadFile(prjName); err == nil {
		aoi.PRJ = string(prj)
	}
	for {
		g, fields, more := dec.DecodeRowFields(fieldNames...)
		if !more {
			break
		}
		z := &Zone{Name: strconv.Itoa(len(aoi.Zones))}
		if nameField != "" {
			z.Name = fields[nameField]
		}
		switch gg := g.(type) {
		case geom.Polygonal:
			z.Polygonal = gg
		default:
			return nil, fmt.Errorf("gridops: area of interest %s: shapes must be polygons; got %T",
				filename, g)
		}
		aoi.Zones = append(aoi.Zones, z)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("gridops: reading area of interest %s: %v", filename, err)
	}
	if len(aoi.Zones) == 0 {
		return nil, fmt.Errorf("gridops: area of interest %s has no shapes", filename)
	}
	return aoi, nil
}

func readAOIGeoJSON(filename string) (*AOI, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("gridops: opening area of interest: %v", err)
	}
	defer f.Close()
	b, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("gridops: reading area of interest %s: %v", filename, err)
	}
	g, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("gridops: decoding area of interest %s: %v", filename, err)
	}
	sr, err := proj.Parse(LongLat)
	if err != nil {
		return nil, err
	}
	aoi := &AOI{SR: sr}
	switch gg := g.(type) {
	case geom.Polygon:
		aoi.Zones = []*Zone{{Polygonal: gg, Name: "0"}}
	case geom.MultiPolygon:
		for i, p := range gg {
			aoi.Zones = append(aoi.Zones, &Zone{Polygonal: p, Name: strconv.Itoa(i)})
		}
	default:
		return nil, fmt.Errorf("gridops: area of interest %s: shapes must be polygons; got %T",
			filename, g)
	}
	return aoi, nil
}

// Union returns all of the area of interest's zones merged into one
// shape.
func (a *AOI) Union() geom.Polygonal {
	var u geom.Polygonal
	for _, z := range a.Zones {
		if u == nil {
			u = z.Polygonal
		} else {
			u = u.Union(z.Polygonal)
		}
	}
	return u
}

// Extent returns the bounding box of the area of interest.
func (a *AOI) Extent() *geom.Bounds {
	b := geom.NewBounds()
	for _, z := range a.Zones {
		b.Extend(z.Bounds())
	}
	return b
}

// Names returns the name of each zone.
func (a *AOI) Names() []string {
	names := make([]string, len(a.Zones))
	for i, z := range a.Zones {
		names[i] = z.Name
	}
	return names
}

// Centroids returns the centroid of each zone, for example for
// extracting point samples at zone centers.
func (a *AOI) Centroids() []geom.Point {
	pts := make([]geom.Point, len(a.Zones))
	for i, z := range a.Zones {
		pts[i] = z.Centroid()
	}
	return pts
}

// TransformTo returns a copy of the area of interest in the given
// spatial reference.
func (a *AOI) TransformTo(sr *proj.SR) (*AOI, error) {
	if a.SR.Equal(sr, 10) {
		return a, nil
	}
	ct, err := a.SR.NewTransform(sr)
	if err != nil {
		return nil, fmt.Errorf("gridops: transforming area of interest: %v", err)
	}
	out := &AOI{SR: sr, Zones: make([]*Zone, len(a.Zones))}
	for i, z := range a.Zones {
		g, err := z.Polygonal.Transform(ct)
		if err != nil {
			return nil, fmt.Errorf("gridops: transforming area of interest zone %s: %v", z.Name, err)
		}
		out.Zones[i] = &Zone{Polygonal: g.(geom.Polygonal), Name: z.Name}
	}
	return out, nil
}
