// Package gpkg writes and reads GeoPackage feature layers using the
// modernc.org/sqlite driver. Only point layers are supported.
package gpkg

import (
	"encoding/binary"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// GeoPackage geometry blob header: magic "GP", version 0, flags, SRID.
const (
	blobMagic0 = 0x47 // 'G'
	blobMagic1 = 0x50 // 'P'

	// little-endian header, no envelope
	blobFlagsLE = 0x01
)

// EncodeGeometry wraps a point's WKB in a GeoPackage geometry blob.
func EncodeGeometry(p *geom.Point) ([]byte, error) {
	data, err := wkb.Marshal(p, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode WKB")
	}

	header := make([]byte, 8)
	header[0] = blobMagic0
	header[1] = blobMagic1
	header[2] = 0 // version
	header[3] = blobFlagsLE
	binary.LittleEndian.PutUint32(header[4:], uint32(p.SRID()))

	return append(header, data...), nil
}

// DecodeGeometry parses a GeoPackage geometry blob back into a point and
// its SRID.
func DecodeGeometry(data []byte) (*geom.Point, int, error) {
	if len(data) < 8 || data[0] != blobMagic0 || data[1] != blobMagic1 {
		return nil, 0, eris.New("gpkg: not a GeoPackage geometry blob")
	}

	flags := data[3]
	byteOrder := binary.ByteOrder(binary.BigEndian)
	if flags&0x01 != 0 {
		byteOrder = binary.LittleEndian
	}
	srid := int(int32(byteOrder.Uint32(data[4:8])))

	// Skip the optional envelope.
	var envLen int
	switch (flags >> 1) & 0x07 {
	case 0:
		envLen = 0
	case 1:
		envLen = 32
	case 2, 3:
		envLen = 48
	case 4:
		envLen = 64
	default:
		return nil, 0, eris.New("gpkg: invalid envelope indicator")
	}
	if len(data) < 8+envLen {
		return nil, 0, eris.New("gpkg: truncated geometry blob")
	}

	g, err := wkb.Unmarshal(data[8+envLen:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode WKB")
	}

	point, ok := g.(*geom.Point)
	if !ok {
		return nil, 0, eris.Errorf("gpkg: expected point geometry, got %T", g)
	}
	point = point.SetSRID(srid)

	return point, srid, nil
}
