package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gazetteer-cli/internal/gazetteer"
)

// ConflictPolicy decides what happens when the target layer already
// exists in the container.
type ConflictPolicy string

const (
	PolicyOverwrite ConflictPolicy = "overwrite"
	PolicyFail      ConflictPolicy = "fail"
	PolicyAppend    ConflictPolicy = "append"
)

// ParsePolicy validates a policy name from config or flags.
func ParsePolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyFail:
		return PolicyFail, nil
	case PolicyAppend:
		return PolicyAppend, nil
	}
	return "", eris.Errorf("gpkg: unknown conflict policy %q", s)
}

// LayerConflictError reports an existing layer under the fail policy.
type LayerConflictError struct {
	Path  string
	Layer string
}

func (e *LayerConflictError) Error() string {
	return fmt.Sprintf("write: layer %q already exists in %s", e.Layer, e.Path)
}

// WriteLayer persists records as one named point layer in the GeoPackage
// at path. The write is atomic from the caller's perspective: all work
// happens in a temporary copy of the container, which replaces the
// original only after a successful commit. On any failure the original
// container is left unchanged.
func WriteLayer(ctx context.Context, path, layer string, records []gazetteer.SpatialRecord, srid int, policy ConflictPolicy) (err error) {
	if err := validLayerName(layer); err != nil {
		return err
	}
	if policy == "" {
		policy = PolicyOverwrite
	}

	log := zap.L().With(
		zap.String("component", "gpkg.writer"),
		zap.String("path", path),
		zap.String("layer", layer),
	)

	tmp, err := stageContainer(path)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	db, err := open(tmp)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err = ensureContainer(ctx, db); err != nil {
		return err
	}
	if err = ensureSRS(ctx, db, srid); err != nil {
		return err
	}

	exists, err := layerExists(ctx, db, layer)
	if err != nil {
		return err
	}

	switch {
	case exists && policy == PolicyFail:
		err = &LayerConflictError{Path: path, Layer: layer}
		return err
	case exists && policy == PolicyOverwrite:
		if err = dropLayer(ctx, db, layer); err != nil {
			return err
		}
		exists = false
	}

	if !exists {
		if err = createLayer(ctx, db, layer, srid); err != nil {
			return err
		}
	}

	if err = insertRecords(ctx, db, layer, records); err != nil {
		return err
	}
	if err = updateExtent(ctx, db, layer); err != nil {
		return err
	}

	if err = db.Close(); err != nil {
		return eris.Wrap(err, "gpkg: close container")
	}
	if err = os.Rename(tmp, path); err != nil {
		return eris.Wrap(err, "gpkg: commit container")
	}

	log.Info("layer written", zap.Int("rows", len(records)), zap.Int("srid", srid))
	return nil
}

// stageContainer creates the temporary working copy of the container:
// a copy of the existing file when present, otherwise a fresh file.
func stageContainer(path string) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "gpkg: create output dir")
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", eris.Wrap(err, "gpkg: create staging file")
	}
	tmp := f.Name()

	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			_ = f.Close()
			return tmp, nil
		}
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "gpkg: open existing container %s", path)
	}
	defer func() { _ = src.Close() }()

	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", eris.Wrap(err, "gpkg: stage existing container")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrap(err, "gpkg: close staging file")
	}

	return tmp, nil
}

// sqlType maps a schema column kind to its SQLite column type.
func sqlType(kind gazetteer.Kind) string {
	switch kind {
	case gazetteer.KindBigInt, gazetteer.KindNullInt:
		return "INTEGER"
	case gazetteer.KindCoord:
		return "REAL"
	default:
		return "TEXT"
	}
}

// createLayer creates the feature table and registers it in the
// GeoPackage metadata tables.
func createLayer(ctx context.Context, db *sql.DB, layer string, srid int) error {
	cols := make([]string, 0, len(gazetteer.Schema)+2)
	cols = append(cols, "fid INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, col := range gazetteer.Schema {
		cols = append(cols, fmt.Sprintf("%s %s", col.Name, sqlType(col.Kind)))
	}
	cols = append(cols, "geom BLOB NOT NULL")

	ddl := fmt.Sprintf("CREATE TABLE %q (%s)", layer, strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return eris.Wrapf(err, "gpkg: create layer %s", layer)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id)
		VALUES (?, 'features', ?, ?)`,
		layer, layer, srid,
	); err != nil {
		return eris.Wrapf(err, "gpkg: register layer %s", layer)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, 'geom', 'POINT', ?, 0, 0)`,
		layer, srid,
	); err != nil {
		return eris.Wrapf(err, "gpkg: register geometry column for %s", layer)
	}

	return nil
}

// dropLayer removes a feature table and its metadata rows.
func dropLayer(ctx context.Context, db *sql.DB, layer string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM gpkg_geometry_columns WHERE table_name = ?", layer); err != nil {
		return eris.Wrapf(err, "gpkg: unregister geometry column for %s", layer)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM gpkg_contents WHERE table_name = ?", layer); err != nil {
		return eris.Wrapf(err, "gpkg: unregister layer %s", layer)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", layer)); err != nil {
		return eris.Wrapf(err, "gpkg: drop layer %s", layer)
	}
	return nil
}

// insertRecords bulk-inserts all records inside one transaction.
func insertRecords(ctx context.Context, db *sql.DB, layer string, records []gazetteer.SpatialRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin insert")
	}
	defer func() { _ = tx.Rollback() }()

	names := make([]string, 0, len(gazetteer.Schema)+1)
	marks := make([]string, 0, len(gazetteer.Schema)+1)
	for _, col := range gazetteer.Schema {
		names = append(names, col.Name)
		marks = append(marks, "?")
	}
	names = append(names, "geom")
	marks = append(marks, "?")

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES (%s)",
		layer, strings.Join(names, ", "), strings.Join(marks, ", "),
	))
	if err != nil {
		return eris.Wrap(err, "gpkg: prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		blob, err := EncodeGeometry(rec.Geom)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			rec.GeonameID, rec.Name, rec.ASCIIName, rec.AlternateNames,
			rec.Latitude, rec.Longitude, rec.FeatureClass, rec.FeatureCode,
			rec.CountryCode, rec.CC2, rec.Admin1Code, rec.Admin2Code,
			rec.Admin3Code, rec.Admin4Code, rec.Population,
			rec.Elevation, rec.DEM, rec.Timezone, rec.Modified,
			blob,
		); err != nil {
			return eris.Wrapf(err, "gpkg: insert record %d", rec.GeonameID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "gpkg: commit insert")
	}
	return nil
}

// updateExtent recomputes the layer bounding box in gpkg_contents.
func updateExtent(ctx context.Context, db *sql.DB, layer string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE gpkg_contents SET
			min_x = (SELECT MIN(longitude) FROM %q),
			min_y = (SELECT MIN(latitude) FROM %q),
			max_x = (SELECT MAX(longitude) FROM %q),
			max_y = (SELECT MAX(latitude) FROM %q),
			last_change = strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now')
		WHERE table_name = ?`,
		layer, layer, layer, layer,
	), layer)
	return eris.Wrapf(err, "gpkg: update extent for %s", layer)
}
