package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// GeoPackage file identification pragmas.
const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300      // GeoPackage 1.3
)

const containerMigration = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE IF NOT EXISTS gpkg_contents (
	table_name  TEXT PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
`

const wgs84Definition = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

// open opens a SQLite database at path with GeoPackage-friendly settings.
// Rollback journal mode keeps the database in a single file so the
// writer's rename trick stays atomic.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}
	return db, nil
}

// ensureContainer creates the GeoPackage metadata tables and the default
// spatial reference rows the format requires.
func ensureContainer(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
		return eris.Wrap(err, "gpkg: set application_id")
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", userVersion)); err != nil {
		return eris.Wrap(err, "gpkg: set user_version")
	}
	if _, err := db.ExecContext(ctx, containerMigration); err != nil {
		return eris.Wrap(err, "gpkg: create metadata tables")
	}

	defaults := []struct {
		name, org   string
		srsID, org2 int
		definition  string
	}{
		{"Undefined cartesian SRS", "NONE", -1, -1, "undefined"},
		{"Undefined geographic SRS", "NONE", 0, 0, "undefined"},
		{"WGS 84 geodetic", "EPSG", 4326, 4326, wgs84Definition},
	}
	for _, d := range defaults {
		if _, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO gpkg_spatial_ref_sys
				(srs_name, srs_id, organization, organization_coordsys_id, definition)
			VALUES (?, ?, ?, ?, ?)`,
			d.name, d.srsID, d.org, d.org2, d.definition,
		); err != nil {
			return eris.Wrapf(err, "gpkg: insert srs %d", d.srsID)
		}
	}

	return nil
}

// ensureSRS makes sure a spatial reference row exists for srid. SRIDs
// other than the defaults are recorded as EPSG references without a full
// WKT definition.
func ensureSRS(ctx context.Context, db *sql.DB, srid int) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO gpkg_spatial_ref_sys
			(srs_name, srs_id, organization, organization_coordsys_id, definition)
		VALUES (?, ?, 'EPSG', ?, 'undefined')`,
		fmt.Sprintf("EPSG:%d", srid), srid, srid,
	)
	return eris.Wrapf(err, "gpkg: ensure srs %d", srid)
}

// layerExists reports whether a layer is registered in gpkg_contents.
func layerExists(ctx context.Context, db *sql.DB, layer string) (bool, error) {
	var count int
	row := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gpkg_contents WHERE table_name = ?", layer)
	if err := row.Scan(&count); err != nil {
		return false, eris.Wrap(err, "gpkg: check layer")
	}
	return count > 0, nil
}

var layerNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validLayerName rejects names that cannot be used safely as SQLite
// identifiers or would collide with GeoPackage metadata tables.
func validLayerName(layer string) error {
	if !layerNameRe.MatchString(layer) {
		return eris.Errorf("gpkg: invalid layer name %q", layer)
	}
	if len(layer) >= 5 && layer[:5] == "gpkg_" {
		return eris.Errorf("gpkg: layer name %q is reserved", layer)
	}
	return nil
}
