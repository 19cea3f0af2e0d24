// Package gazetteer implements the GeoNames ingestion pipeline: load
// tab-delimited country dumps, filter by feature class, build point
// geometries, and hand the result to a spatial writer.
package gazetteer

// Kind is the semantic type of a schema column.
type Kind int

const (
	KindText Kind = iota
	KindBigInt
	KindNullInt
	KindCoord // parsed lazily; validated by the geometry builder, not the loader
	KindClass // one-letter feature class from the fixed enumeration
)

// Column pairs a column name with its semantic type.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the fixed, ordered column list applied positionally to
// headerless source rows.
var Schema = []Column{
	{"geonameid", KindBigInt},
	{"name", KindText},
	{"asciiname", KindText},
	{"alternatenames", KindText},
	{"latitude", KindCoord},
	{"longitude", KindCoord},
	{"feature_class", KindClass},
	{"feature_code", KindText},
	{"country_code", KindText},
	{"cc2", KindText},
	{"admin1_code", KindText},
	{"admin2_code", KindText},
	{"admin3_code", KindText},
	{"admin4_code", KindText},
	{"population", KindBigInt},
	{"elevation", KindNullInt},
	{"dem", KindNullInt},
	{"timezone", KindText},
	{"modification_date", KindText},
}

// FeatureClasses is the fixed nine-value feature-class enumeration.
var FeatureClasses = map[string]bool{
	"A": true, "H": true, "L": true, "P": true, "R": true,
	"S": true, "T": true, "U": true, "V": true,
}

// ValidFeatureClass reports whether s is a member of the enumeration.
func ValidFeatureClass(s string) bool {
	return FeatureClasses[s]
}
