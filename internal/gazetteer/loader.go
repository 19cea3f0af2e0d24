package gazetteer

import (
	"bufio"
	"context"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// LoadOptions configures the record loader.
type LoadOptions struct {
	Encoding string // IANA charset of the source files (default "utf-8")
	Strict   bool   // fail on the first bad row instead of skipping it
}

// LoadReport summarizes one load: rows produced, rows skipped in lenient
// mode, and a sample of the row errors behind the skips.
type LoadReport struct {
	Rows    int
	Skipped int
	Samples []error
}

const maxErrorSamples = 5

func (r *LoadReport) record(err error) {
	r.Skipped++
	if len(r.Samples) < maxErrorSamples {
		r.Samples = append(r.Samples, err)
	}
}

// Load parses one or more dump files and concatenates the results in the
// order given. It performs no deduplication and assumes no sort order.
func Load(ctx context.Context, paths []string, opts LoadOptions) (Dataset, *LoadReport, error) {
	var ds Dataset
	report := &LoadReport{}

	for _, path := range paths {
		part, partReport, err := LoadFile(ctx, path, opts)
		if err != nil {
			return nil, nil, err
		}
		ds = append(ds, part...)
		report.Rows += partReport.Rows
		report.Skipped += partReport.Skipped
		for _, s := range partReport.Samples {
			if len(report.Samples) < maxErrorSamples {
				report.Samples = append(report.Samples, s)
			}
		}
	}

	return ds, report, nil
}

// LoadFile parses a single tab-delimited, headerless dump file into a
// Dataset. Rows that fail schema or type checks are skipped and counted
// unless opts.Strict is set, in which case the first bad row is fatal.
func LoadFile(ctx context.Context, path string, opts LoadOptions) (Dataset, *LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "load: open %s", path)
	}
	defer func() { _ = f.Close() }()

	reader, err := decodeReader(f, opts.Encoding)
	if err != nil {
		return nil, nil, err
	}

	rowCh, errCh := streamRows(ctx, reader)
	defer func() {
		// Unblock the producer if a strict-mode error returns early.
		for range rowCh {
		}
	}()

	var ds Dataset
	report := &LoadReport{}
	source := path
	rowNum := 0

	for fields := range rowCh {
		rowNum++

		if len(fields) < len(Schema) {
			rowErr := &SchemaMismatchError{Source: source, Row: rowNum, Fields: len(fields), Want: len(Schema)}
			if opts.Strict {
				return nil, nil, rowErr
			}
			report.record(rowErr)
			continue
		}

		rec, parseErr := parseRecord(fields, source, rowNum)
		if parseErr != nil {
			if opts.Strict {
				return nil, nil, parseErr
			}
			report.record(parseErr)
			continue
		}

		ds = append(ds, rec)
		report.Rows++
	}

	if err := <-errCh; err != nil {
		return nil, nil, err
	}

	if report.Skipped > 0 {
		zap.L().Warn("load: skipped malformed rows",
			zap.String("source", source),
			zap.Int("skipped", report.Skipped),
		)
	}

	return ds, report, nil
}

// decodeReader wraps r so that its contents are transcoded from the named
// charset to UTF-8. Unknown charset names are rejected up front.
func decodeReader(r io.Reader, name string) (io.Reader, error) {
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "load: unknown encoding %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// streamRows reads tab-delimited lines and sends the split fields to a
// channel. Both channels are closed when processing completes; the caller
// must drain the row channel and then receive once from the error channel.
func streamRows(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		scanner := bufio.NewScanner(r)
		// Alternate-name lists can run long.
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}

			select {
			case rowCh <- strings.Split(line, "\t"):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "load: context cancelled")
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errCh <- eris.Wrap(err, "load: read row")
		}
	}()

	return rowCh, errCh
}

// parseRecord coerces one split row into a Record per the fixed schema.
func parseRecord(fields []string, source string, row int) (Record, error) {
	coerce := func(col string) *TypeCoercionError {
		return &TypeCoercionError{Source: source, Row: row, Column: col, Value: fieldByName(fields, col)}
	}

	id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Record{}, coerce("geonameid")
	}

	class := strings.TrimSpace(fields[6])
	if !ValidFeatureClass(class) {
		return Record{}, coerce("feature_class")
	}

	population, err := parseBigInt(fields[14])
	if err != nil || population < 0 {
		return Record{}, coerce("population")
	}

	elevation, err := parseNullInt(fields[15])
	if err != nil {
		return Record{}, coerce("elevation")
	}

	dem, err := parseNullInt(fields[16])
	if err != nil {
		return Record{}, coerce("dem")
	}

	return Record{
		GeonameID:      id,
		Name:           fields[1],
		ASCIIName:      fields[2],
		AlternateNames: fields[3],
		Latitude:       parseCoord(fields[4]),
		Longitude:      parseCoord(fields[5]),
		FeatureClass:   class,
		FeatureCode:    strings.TrimSpace(fields[7]),
		CountryCode:    strings.TrimSpace(fields[8]),
		CC2:            strings.TrimSpace(fields[9]),
		Admin1Code:     strings.TrimSpace(fields[10]),
		Admin2Code:     strings.TrimSpace(fields[11]),
		Admin3Code:     strings.TrimSpace(fields[12]),
		Admin4Code:     strings.TrimSpace(fields[13]),
		Population:     population,
		Elevation:      elevation,
		DEM:            dem,
		Timezone:       strings.TrimSpace(fields[17]),
		Modified:       strings.TrimSpace(fields[18]),
	}, nil
}

// parseCoord parses a coordinate field, returning NaN for empty or
// non-numeric content. Validation happens in the geometry builder.
func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// parseBigInt parses a required integer field; empty means zero.
func parseBigInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseNullInt parses an optional integer field; empty means absent.
func parseNullInt(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// fieldByName returns the raw value of a named schema column from a
// split row, for error context.
func fieldByName(fields []string, name string) string {
	for i, col := range Schema {
		if col.Name == name && i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
	}
	return ""
}
