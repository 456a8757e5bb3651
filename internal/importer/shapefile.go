package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	shp "github.com/jonas-p/go-shp"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// ImportShapefile loads a .shp file's DBF attribute table into a new table.
// Attribute fields become typed columns; the geometry of each record is
// encoded as a GeoJSON-style object in a JSON "geometry" column so the table
// stays purely tabular.
func ImportShapefile(filePath, tableName string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	applyDefaults(opts)
	if opts.TableName != "" {
		tableName = opts.TableName
	}

	r, err := shp.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	fields := r.Fields()
	colNames := make([]string, 0, len(fields)+1)
	for _, fld := range fields {
		colNames = append(colNames, fld.String())
	}
	colNames = sanitizeColumnNames(colNames)

	var attrRows [][]string
	var geoms []any
	for r.Next() {
		idx, shape := r.Shape()
		row := make([]string, len(fields))
		for fi := range fields {
			row[fi] = strings.TrimSpace(r.ReadAttribute(idx, fi))
		}
		attrRows = append(attrRows, row)
		geoms = append(geoms, shapeToGeoJSON(shape))
	}
	if len(attrRows) == 0 {
		return nil, nil, fmt.Errorf("no records found in shapefile")
	}

	tbl, result, err := buildInferredTable(tableName, colNames, attrRows, opts)
	if err != nil {
		return nil, nil, err
	}
	geomCol := make([]any, len(geoms))
	for i, g := range geoms {
		if g == nil {
			continue
		}
		b, err := json.Marshal(g)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("record %d: marshal geometry: %v", i+1, err))
			continue
		}
		geomCol[i] = string(b)
	}
	if err := tbl.AddColumn(table.Column{Name: "geometry", Type: table.JSONType}, geomCol); err != nil {
		return nil, nil, err
	}
	result.ColumnNames = append(result.ColumnNames, "geometry")
	result.ColumnTypes = append(result.ColumnTypes, table.JSONType)
	return tbl, result, nil
}

// shapeToGeoJSON converts the common shapefile geometries to GeoJSON-shaped
// maps. Unknown shapes become nil.
func shapeToGeoJSON(shape shp.Shape) any {
	switch s := shape.(type) {
	case *shp.Point:
		return map[string]any{"type": "Point", "coordinates": []float64{s.X, s.Y}}
	case *shp.PolyLine:
		coords := make([][]float64, len(s.Points))
		for i, p := range s.Points {
			coords[i] = []float64{p.X, p.Y}
		}
		return map[string]any{"type": "LineString", "coordinates": coords}
	case *shp.Polygon:
		ring := make([][]float64, len(s.Points))
		for i, p := range s.Points {
			ring[i] = []float64{p.X, p.Y}
		}
		return map[string]any{"type": "Polygon", "coordinates": []any{ring}}
	default:
		return nil
	}
}
