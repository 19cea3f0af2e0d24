package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gazetteer-cli/internal/gazetteer"
	"github.com/sells-group/gazetteer-cli/internal/gpkg"
)

// row builds a 19-field dump row for the given id, feature class, and
// coordinates; everything else is fixed.
func row(id, class, lat, lon string) string {
	return strings.Join([]string{
		id, "Some Peak", "Some Peak", "", lat, lon, class, "PK", "AD",
		"", "00", "", "", "", "0", "", "2860", "Europe/Andorra", "2014-11-05",
	}, "\t")
}

func writeDump(t *testing.T, dir, name string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644))
	return path
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := writeDump(t, dir, "AD.txt",
		row("1", "T", "42.64991", "1.53335"),
		row("2", "P", "42.50779", "1.52109"),
		row("3", "T", "42.59338", "1.44986"),
	)
	out := filepath.Join(dir, "out.gpkg")

	summary, err := Run(context.Background(), Options{
		Sources:      []string{src},
		Output:       out,
		Layer:        "mountains",
		FeatureClass: "T",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Loaded)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, 0, summary.GeomFailures)

	data, err := gpkg.ReadLayer(context.Background(), out, "mountains")
	require.NoError(t, err)
	assert.Equal(t, 4326, data.SRID)
	require.Len(t, data.Records, 2)
	assert.Equal(t, int64(1), data.Records[0].GeonameID)
	assert.Equal(t, int64(3), data.Records[1].GeonameID)
}

func TestRun_MultipleSources(t *testing.T) {
	dir := t.TempDir()
	a := writeDump(t, dir, "AD.txt", row("1", "T", "42.6", "1.5"))
	b := writeDump(t, dir, "FR.txt", row("2", "T", "45.8", "6.8"), row("3", "P", "48.8", "2.3"))
	out := filepath.Join(dir, "out.gpkg")

	summary, err := Run(context.Background(), Options{
		Sources:      []string{a, b},
		Output:       out,
		Layer:        "mountains",
		FeatureClass: "T",
		Concurrency:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Loaded)
	assert.Equal(t, 2, summary.Written)

	data, err := gpkg.ReadLayer(context.Background(), out, "mountains")
	require.NoError(t, err)
	ids := map[int64]bool{}
	for _, rec := range data.Records {
		ids[rec.GeonameID] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true}, ids)
}

func TestRun_StrictFailsBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	src := writeDump(t, dir, "AD.txt",
		row("1", "T", "42.6", "abc"),
		row("2", "T", "42.7", "1.6"),
	)
	out := filepath.Join(dir, "out.gpkg")

	_, err := Run(context.Background(), Options{
		Sources:      []string{src},
		Output:       out,
		Layer:        "mountains",
		FeatureClass: "T",
		Strict:       true,
	})

	var geomErr *gazetteer.GeometryConstructionError
	require.ErrorAs(t, err, &geomErr)
	assert.Equal(t, int64(1), geomErr.GeonameID)
	assert.NoFileExists(t, out)
}

func TestRun_LenientWritesValidRows(t *testing.T) {
	dir := t.TempDir()
	src := writeDump(t, dir, "AD.txt",
		row("1", "T", "42.6", "abc"),
		row("2", "T", "42.7", "1.6"),
	)
	out := filepath.Join(dir, "out.gpkg")

	summary, err := Run(context.Background(), Options{
		Sources:      []string{src},
		Output:       out,
		Layer:        "mountains",
		FeatureClass: "T",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Written)
	assert.Equal(t, 1, summary.GeomFailures)
	assert.Equal(t, []int64{1}, summary.SampleIDs)

	data, err := gpkg.ReadLayer(context.Background(), out, "mountains")
	require.NoError(t, err)
	require.Len(t, data.Records, 1)
	assert.Equal(t, int64(2), data.Records[0].GeonameID)
}

func TestRun_ConflictFailLeavesLayerUntouched(t *testing.T) {
	dir := t.TempDir()
	first := writeDump(t, dir, "AD.txt", row("1", "T", "42.6", "1.5"))
	second := writeDump(t, dir, "FR.txt", row("2", "T", "45.8", "6.8"))
	out := filepath.Join(dir, "out.gpkg")

	_, err := Run(context.Background(), Options{
		Sources:      []string{first},
		Output:       out,
		Layer:        "mountains",
		FeatureClass: "T",
	})
	require.NoError(t, err)

	_, err = Run(context.Background(), Options{
		Sources:      []string{second},
		Output:       out,
		Layer:        "mountains",
		FeatureClass: "T",
		Policy:       gpkg.PolicyFail,
	})
	var conflict *gpkg.LayerConflictError
	require.ErrorAs(t, err, &conflict)

	data, err := gpkg.ReadLayer(context.Background(), out, "mountains")
	require.NoError(t, err)
	require.Len(t, data.Records, 1)
	assert.Equal(t, int64(1), data.Records[0].GeonameID)
}

func TestRun_ShapefileExport(t *testing.T) {
	dir := t.TempDir()
	src := writeDump(t, dir, "AD.txt", row("1", "T", "42.64991", "1.53335"))
	out := filepath.Join(dir, "out.gpkg")
	shpPath := filepath.Join(dir, "mountains.shp")

	_, err := Run(context.Background(), Options{
		Sources:       []string{src},
		Output:        out,
		Layer:         "mountains",
		FeatureClass:  "T",
		ShapefilePath: shpPath,
	})
	require.NoError(t, err)

	reader, err := shp.Open(shpPath)
	require.NoError(t, err)
	defer reader.Close()

	count := 0
	for reader.Next() {
		_, shape := reader.Shape()
		point, ok := shape.(*shp.Point)
		require.True(t, ok)
		assert.InDelta(t, 1.53335, point.X, 1e-9)
		assert.InDelta(t, 42.64991, point.Y, 1e-9)
		count++
	}
	assert.Equal(t, 1, count)
}

func TestRun_InvalidFeatureClass(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Sources:      []string{"whatever.txt"},
		Output:       "out.gpkg",
		FeatureClass: "Z",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in enumeration")
}

func TestRun_NoSources(t *testing.T) {
	_, err := Run(context.Background(), Options{Output: "out.gpkg", FeatureClass: "T"})
	require.Error(t, err)
}
