package gazetteer

// FilterByClass returns the records whose feature class equals class.
// The result is a fresh slice; the input Dataset is never mutated, so
// repeated filters over the same Dataset do not interfere. An empty
// result is a valid outcome, not an error.
func FilterByClass(ds Dataset, class string) Dataset {
	out := make(Dataset, 0)
	for _, rec := range ds {
		if rec.FeatureClass == class {
			out = append(out, rec)
		}
	}
	return out
}
