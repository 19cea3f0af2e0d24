package gazetteer

import "fmt"

// SchemaMismatchError reports a source row with fewer fields than the
// declared schema.
type SchemaMismatchError struct {
	Source string
	Row    int // 1-based row number within Source
	Fields int
	Want   int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("load: %s row %d has %d fields, schema declares %d",
		e.Source, e.Row, e.Fields, e.Want)
}

// TypeCoercionError reports a field that could not be coerced to its
// declared type (or a feature class outside the enumeration).
type TypeCoercionError struct {
	Source string
	Row    int
	Column string
	Value  string
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("load: %s row %d column %s: cannot coerce %q",
		e.Source, e.Row, e.Column, e.Value)
}

// GeometryConstructionError reports a record whose coordinates are
// missing, non-numeric, or out of range.
type GeometryConstructionError struct {
	GeonameID int64
	Reason    string
}

func (e *GeometryConstructionError) Error() string {
	return fmt.Sprintf("geometry: record %d: %s", e.GeonameID, e.Reason)
}
