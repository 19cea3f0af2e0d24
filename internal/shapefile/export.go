// Package shapefile exports built layers as ESRI point shapefiles for
// tools that do not read GeoPackage.
package shapefile

import (
	"strconv"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gazetteer-cli/internal/gazetteer"
)

// DBF field names are limited to 10 characters, so the gazetteer columns
// are abbreviated here.
func fields() []shp.Field {
	return []shp.Field{
		shp.NumberField("GEONAMEID", 12),
		shp.StringField("NAME", 100),
		shp.StringField("ASCIINAME", 100),
		shp.StringField("ALTNAMES", 254),
		shp.FloatField("LAT", 13, 7),
		shp.FloatField("LON", 13, 7),
		shp.StringField("FCLASS", 1),
		shp.StringField("FCODE", 10),
		shp.StringField("COUNTRY", 2),
		shp.StringField("CC2", 60),
		shp.StringField("ADMIN1", 20),
		shp.StringField("ADMIN2", 80),
		shp.StringField("ADMIN3", 20),
		shp.StringField("ADMIN4", 20),
		shp.NumberField("POP", 12),
		shp.NumberField("ELEV", 8),
		shp.NumberField("DEM", 8),
		shp.StringField("TIMEZONE", 40),
		shp.StringField("MODDATE", 10),
	}
}

// Export writes records as a POINT shapefile at path. Point coordinates
// come from the built geometry, not the raw columns.
func Export(path string, records []gazetteer.SpatialRecord) error {
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "shapefile: create %s", path)
	}

	if err := w.SetFields(fields()); err != nil {
		w.Close()
		return eris.Wrap(err, "shapefile: set fields")
	}

	for _, rec := range records {
		row := int(w.Write(&shp.Point{X: rec.Geom.X(), Y: rec.Geom.Y()}))

		for i, v := range attributes(rec) {
			if err := w.WriteAttribute(row, i, v); err != nil {
				w.Close()
				return eris.Wrapf(err, "shapefile: write attribute %d for record %d", i, rec.GeonameID)
			}
		}
	}

	w.Close()
	return nil
}

// attributes flattens a record into DBF column order. Absent optional
// values become empty strings.
func attributes(rec gazetteer.SpatialRecord) []interface{} {
	elev := ""
	if rec.Elevation != nil {
		elev = strconv.FormatInt(*rec.Elevation, 10)
	}
	dem := ""
	if rec.DEM != nil {
		dem = strconv.FormatInt(*rec.DEM, 10)
	}

	return []interface{}{
		int(rec.GeonameID),
		rec.Name,
		rec.ASCIIName,
		rec.AlternateNames,
		rec.Latitude,
		rec.Longitude,
		rec.FeatureClass,
		rec.FeatureCode,
		rec.CountryCode,
		rec.CC2,
		rec.Admin1Code,
		rec.Admin2Code,
		rec.Admin3Code,
		rec.Admin4Code,
		int(rec.Population),
		elev,
		dem,
		rec.Timezone,
		rec.Modified,
	}
}
