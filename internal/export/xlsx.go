package export

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/geodensity/internal/aggregate"
)

// WriteXLSX writes one workbook with a sheet per density grid, the route
// table and the overlay points.
func WriteXLSX(path string, b *Bundle) error {
	f := xlsx.NewFile()

	for _, g := range b.Output.Density {
		sheet, err := f.AddSheet(fmt.Sprintf("density_%d", g.Endpoint))
		if err != nil {
			return eris.Wrap(err, "export: add density sheet")
		}
		addRow(sheet, "x", "y", "center_lon", "center_lat", "count", "log_count")
		for _, c := range g.Cells() {
			row := sheet.AddRow()
			row.AddCell().SetInt(c.X)
			row.AddCell().SetInt(c.Y)
			row.AddCell().SetFloat(c.CenterLon)
			row.AddCell().SetFloat(c.CenterLat)
			row.AddCell().SetInt(c.Count)
			row.AddCell().SetFloat(c.LogCount)
		}
	}

	routes, err := f.AddSheet("routes")
	if err != nil {
		return eris.Wrap(err, "export: add routes sheet")
	}
	addRow(routes, "rank", "count", "origin_lat", "origin_lon", "dest_lat", "dest_lon", "distance_km")
	for _, r := range b.Output.Routes {
		writeRoute(routes.AddRow(), r)
	}

	if len(b.Overlay) > 0 {
		sheet, err := f.AddSheet("overlay")
		if err != nil {
			return eris.Wrap(err, "export: add overlay sheet")
		}
		addRow(sheet, "index", "latitude", "longitude")
		for _, h := range b.Overlay {
			row := sheet.AddRow()
			row.AddCell().SetInt64(h.Index)
			row.AddCell().SetFloat(h.Latitude)
			row.AddCell().SetFloat(h.Longitude)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func writeRoute(row *xlsx.Row, r aggregate.Route) {
	row.AddCell().SetInt(r.Rank)
	row.AddCell().SetInt(r.Count)
	row.AddCell().SetFloat(r.OriginLat)
	row.AddCell().SetFloat(r.OriginLon)
	row.AddCell().SetFloat(r.DestLat)
	row.AddCell().SetFloat(r.DestLon)
	row.AddCell().SetFloat(r.DistanceKm)
}
