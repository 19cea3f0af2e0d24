package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gazetteer-cli/internal/gazetteer"
)

// LayerData is a layer read back from a container: its declared SRID and
// the reconstructed records.
type LayerData struct {
	Name    string
	SRID    int
	Records []gazetteer.SpatialRecord
}

// ReadLayer loads a named point layer from the GeoPackage at path.
func ReadLayer(ctx context.Context, path, layer string) (*LayerData, error) {
	if err := validLayerName(layer); err != nil {
		return nil, err
	}

	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var srid int
	row := db.QueryRowContext(ctx, "SELECT srs_id FROM gpkg_contents WHERE table_name = ?", layer)
	if err := row.Scan(&srid); err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Errorf("gpkg: layer %q not found in %s", layer, path)
		}
		return nil, eris.Wrap(err, "gpkg: read layer metadata")
	}

	names := make([]string, 0, len(gazetteer.Schema)+1)
	for _, col := range gazetteer.Schema {
		names = append(names, col.Name)
	}
	names = append(names, "geom")

	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %q ORDER BY fid", strings.Join(names, ", "), layer,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: query layer %s", layer)
	}
	defer rows.Close()

	data := &LayerData{Name: layer, SRID: srid}
	for rows.Next() {
		var rec gazetteer.Record
		var elevation, dem sql.NullInt64
		var blob []byte

		if err := rows.Scan(
			&rec.GeonameID, &rec.Name, &rec.ASCIIName, &rec.AlternateNames,
			&rec.Latitude, &rec.Longitude, &rec.FeatureClass, &rec.FeatureCode,
			&rec.CountryCode, &rec.CC2, &rec.Admin1Code, &rec.Admin2Code,
			&rec.Admin3Code, &rec.Admin4Code, &rec.Population,
			&elevation, &dem, &rec.Timezone, &rec.Modified,
			&blob,
		); err != nil {
			return nil, eris.Wrapf(err, "gpkg: scan layer %s", layer)
		}

		if elevation.Valid {
			v := elevation.Int64
			rec.Elevation = &v
		}
		if dem.Valid {
			v := dem.Int64
			rec.DEM = &v
		}

		point, _, err := DecodeGeometry(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "gpkg: decode geometry for record %d", rec.GeonameID)
		}

		data.Records = append(data.Records, gazetteer.SpatialRecord{Record: rec, Geom: point})
	}

	return data, eris.Wrap(rows.Err(), "gpkg: iterate layer")
}
