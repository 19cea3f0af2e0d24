package gazetteer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// SpatialRecord is a Record with a derived point geometry. The geometry
// is attached once, after filtering, and never mutated.
type SpatialRecord struct {
	Record
	Geom *geom.Point
}

// GeometryReport summarizes point construction over one dataset: how
// many points were built, how many rows failed, and a sample of the
// offending record identifiers.
type GeometryReport struct {
	Built     int
	Failed    int
	SampleIDs []int64
}

func (r *GeometryReport) record(id int64) {
	r.Failed++
	if len(r.SampleIDs) < maxErrorSamples {
		r.SampleIDs = append(r.SampleIDs, id)
	}
}

// BuildPoints derives Point(longitude, latitude) for every record. All
// points in one invocation share the given SRID. Rows with missing or
// out-of-range coordinates are dropped and counted unless strict is set,
// in which case the first failure is fatal.
func BuildPoints(ds Dataset, srid int, strict bool) ([]SpatialRecord, *GeometryReport, error) {
	out := make([]SpatialRecord, 0, len(ds))
	report := &GeometryReport{}

	for _, rec := range ds {
		point, err := buildPoint(rec, srid)
		if err != nil {
			if strict {
				return nil, nil, err
			}
			report.record(rec.GeonameID)
			continue
		}
		out = append(out, SpatialRecord{Record: rec, Geom: point})
		report.Built++
	}

	if report.Failed > 0 {
		zap.L().Warn("geometry: dropped rows with invalid coordinates",
			zap.Int("failed", report.Failed),
			zap.Int64s("sample_ids", report.SampleIDs),
		)
	}

	return out, report, nil
}

// buildPoint validates one record's coordinates and constructs its point.
func buildPoint(rec Record, srid int) (*geom.Point, error) {
	if !rec.HasCoordinates() {
		return nil, &GeometryConstructionError{GeonameID: rec.GeonameID, Reason: "missing or non-numeric coordinate"}
	}
	if rec.Latitude < -90 || rec.Latitude > 90 {
		return nil, &GeometryConstructionError{
			GeonameID: rec.GeonameID,
			Reason:    fmt.Sprintf("latitude %g outside [-90,90]", rec.Latitude),
		}
	}
	if rec.Longitude < -180 || rec.Longitude > 180 {
		return nil, &GeometryConstructionError{
			GeonameID: rec.GeonameID,
			Reason:    fmt.Sprintf("longitude %g outside [-180,180]", rec.Longitude),
		}
	}

	return geom.NewPointFlat(geom.XY, []float64{rec.Longitude, rec.Latitude}).SetSRID(srid), nil
}

// ParseSRID extracts the numeric SRID from a CRS identifier such as
// "EPSG:4326". A bare number is also accepted.
func ParseSRID(crs string) (int, error) {
	s := strings.TrimSpace(crs)
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		if !strings.EqualFold(s[:idx], "EPSG") {
			return 0, eris.Errorf("geometry: unsupported CRS authority in %q", crs)
		}
		s = s[idx+1:]
	}
	srid, err := strconv.Atoi(s)
	if err != nil {
		return 0, eris.Errorf("geometry: invalid CRS identifier %q", crs)
	}
	return srid, nil
}
