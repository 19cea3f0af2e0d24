package gpkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestEncodeDecodeGeometry(t *testing.T) {
	p := geom.NewPointFlat(geom.XY, []float64{1.53335, 42.64991}).SetSRID(4326)

	blob, err := EncodeGeometry(p)
	require.NoError(t, err)
	assert.Equal(t, byte('G'), blob[0])
	assert.Equal(t, byte('P'), blob[1])

	got, srid, err := DecodeGeometry(blob)
	require.NoError(t, err)
	assert.Equal(t, 4326, srid)
	assert.Equal(t, p.X(), got.X())
	assert.Equal(t, p.Y(), got.Y())
	assert.Equal(t, 4326, got.SRID())
}

func TestDecodeGeometry_BadMagic(t *testing.T) {
	_, _, err := DecodeGeometry([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})
	require.Error(t, err)
}

func TestDecodeGeometry_Truncated(t *testing.T) {
	_, _, err := DecodeGeometry([]byte{'G', 'P'})
	require.Error(t, err)
}
