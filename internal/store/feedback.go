package store

// DefaultFeedback is reported when named values omit the primary objective.
const DefaultFeedback = 0.0

// ScalarFeedback derives the single value the optimizer maximizes:
//   - named values containing the primary objective yield that value,
//     negated when the primary objective is minimized;
//   - a bare scalar is passed through unmodified;
//   - named values without the primary objective yield DefaultFeedback and
//     found is false.
func ScalarFeedback(primary ObjectiveSpec, values ObjectiveValues) (feedback float64, found bool) {
	if values.IsScalar() {
		return values.scalar, true
	}

	v, ok := values.named[primary.Name]
	if !ok {
		return DefaultFeedback, false
	}
	if primary.Minimize {
		return -v, true
	}
	return v, true
}
