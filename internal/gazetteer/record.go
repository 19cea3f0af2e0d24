package gazetteer

import "math"

// Record is one gazetteer entry parsed from a dump row.
//
// Latitude and Longitude are NaN when the source field was empty or not
// numeric; the geometry builder turns that into a per-row error so that
// coordinate problems surface at the stage that needs coordinates.
type Record struct {
	GeonameID      int64
	Name           string
	ASCIIName      string
	AlternateNames string
	Latitude       float64
	Longitude      float64
	FeatureClass   string
	FeatureCode    string
	CountryCode    string
	CC2            string
	Admin1Code     string
	Admin2Code     string
	Admin3Code     string
	Admin4Code     string
	Population     int64
	Elevation      *int64
	DEM            *int64
	Timezone       string
	Modified       string
}

// HasCoordinates reports whether both coordinates parsed as numbers.
func (r Record) HasCoordinates() bool {
	return !math.IsNaN(r.Latitude) && !math.IsNaN(r.Longitude)
}

// Dataset is an unordered collection of records sharing one schema.
// Row order carries no semantic meaning.
type Dataset []Record
