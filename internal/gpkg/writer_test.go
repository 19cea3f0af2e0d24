package gpkg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/gazetteer-cli/internal/gazetteer"
)

func spatialRecord(id int64, name string, lon, lat float64) gazetteer.SpatialRecord {
	elev := int64(2942)
	return gazetteer.SpatialRecord{
		Record: gazetteer.Record{
			GeonameID:    id,
			Name:         name,
			ASCIIName:    name,
			Latitude:     lat,
			Longitude:    lon,
			FeatureClass: "T",
			FeatureCode:  "PK",
			CountryCode:  "AD",
			Population:   0,
			Elevation:    &elev,
			Timezone:     "Europe/Andorra",
			Modified:     "2014-11-05",
		},
		Geom: geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326),
	}
}

func TestWriteLayer_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")
	records := []gazetteer.SpatialRecord{
		spatialRecord(1, "Pic de Font Blanca", 1.53335, 42.64991),
		spatialRecord(2, "Pic de Coma Pedrosa", 1.44986, 42.59338),
	}

	require.NoError(t, WriteLayer(context.Background(), path, "mountains", records, 4326, PolicyOverwrite))

	data, err := ReadLayer(context.Background(), path, "mountains")
	require.NoError(t, err)
	assert.Equal(t, 4326, data.SRID)
	require.Len(t, data.Records, 2)

	got := data.Records[0]
	assert.Equal(t, int64(1), got.GeonameID)
	assert.Equal(t, "Pic de Font Blanca", got.Name)
	assert.Equal(t, "T", got.FeatureClass)
	require.NotNil(t, got.Elevation)
	assert.Equal(t, int64(2942), *got.Elevation)
	assert.Nil(t, got.DEM)
	assert.Equal(t, records[0].Longitude, got.Geom.X())
	assert.Equal(t, records[0].Latitude, got.Geom.Y())
	assert.Equal(t, 4326, got.Geom.SRID())
}

func TestWriteLayer_NoStagingLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.gpkg")

	require.NoError(t, WriteLayer(context.Background(), path, "mountains",
		[]gazetteer.SpatialRecord{spatialRecord(1, "peak", 1.5, 42.6)}, 4326, PolicyOverwrite))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.gpkg", entries[0].Name())
}

func TestWriteLayer_ConflictFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")
	original := []gazetteer.SpatialRecord{
		spatialRecord(1, "peak", 1.5, 42.6),
		spatialRecord(2, "ridge", 1.6, 42.7),
	}
	require.NoError(t, WriteLayer(context.Background(), path, "mountains", original, 4326, PolicyOverwrite))

	err := WriteLayer(context.Background(), path, "mountains",
		[]gazetteer.SpatialRecord{spatialRecord(3, "other", 1.7, 42.8)}, 4326, PolicyFail)

	var conflict *LayerConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "mountains", conflict.Layer)

	// The existing layer is untouched.
	data, err := ReadLayer(context.Background(), path, "mountains")
	require.NoError(t, err)
	require.Len(t, data.Records, 2)
	assert.Equal(t, int64(1), data.Records[0].GeonameID)
}

func TestWriteLayer_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, WriteLayer(context.Background(), path, "mountains",
		[]gazetteer.SpatialRecord{spatialRecord(1, "peak", 1.5, 42.6), spatialRecord(2, "ridge", 1.6, 42.7)},
		4326, PolicyOverwrite))

	require.NoError(t, WriteLayer(context.Background(), path, "mountains",
		[]gazetteer.SpatialRecord{spatialRecord(3, "other", 1.7, 42.8)}, 4326, PolicyOverwrite))

	data, err := ReadLayer(context.Background(), path, "mountains")
	require.NoError(t, err)
	require.Len(t, data.Records, 1)
	assert.Equal(t, int64(3), data.Records[0].GeonameID)
}

func TestWriteLayer_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, WriteLayer(context.Background(), path, "mountains",
		[]gazetteer.SpatialRecord{spatialRecord(1, "peak", 1.5, 42.6)}, 4326, PolicyOverwrite))

	require.NoError(t, WriteLayer(context.Background(), path, "mountains",
		[]gazetteer.SpatialRecord{spatialRecord(2, "ridge", 1.6, 42.7)}, 4326, PolicyAppend))

	data, err := ReadLayer(context.Background(), path, "mountains")
	require.NoError(t, err)
	assert.Len(t, data.Records, 2)
}

func TestWriteLayer_SecondLayerSameContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, WriteLayer(context.Background(), path, "mountains",
		[]gazetteer.SpatialRecord{spatialRecord(1, "peak", 1.5, 42.6)}, 4326, PolicyOverwrite))

	require.NoError(t, WriteLayer(context.Background(), path, "villages",
		[]gazetteer.SpatialRecord{spatialRecord(2, "hamlet", 1.6, 42.7)}, 4326, PolicyFail))

	mountains, err := ReadLayer(context.Background(), path, "mountains")
	require.NoError(t, err)
	assert.Len(t, mountains.Records, 1)

	villages, err := ReadLayer(context.Background(), path, "villages")
	require.NoError(t, err)
	assert.Len(t, villages.Records, 1)
}

func TestWriteLayer_InvalidLayerName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")
	rec := []gazetteer.SpatialRecord{spatialRecord(1, "peak", 1.5, 42.6)}

	require.Error(t, WriteLayer(context.Background(), path, "bad name; drop", rec, 4326, PolicyOverwrite))
	require.Error(t, WriteLayer(context.Background(), path, "gpkg_contents", rec, 4326, PolicyOverwrite))
	assert.NoFileExists(t, path)
}

func TestReadLayer_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, WriteLayer(context.Background(), path, "mountains",
		[]gazetteer.SpatialRecord{spatialRecord(1, "peak", 1.5, 42.6)}, 4326, PolicyOverwrite))

	_, err := ReadLayer(context.Background(), path, "rivers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]ConflictPolicy{
		"overwrite": PolicyOverwrite,
		"FAIL":      PolicyFail,
		" append ":  PolicyAppend,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParsePolicy("merge")
	require.Error(t, err)
}
