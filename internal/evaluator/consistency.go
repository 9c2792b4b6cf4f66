package evaluator

// Consistency is the fraction of responses matching the modal normalized
// response. Defined as 0 for an empty sample set; 1 for a single sample.
func Consistency(samples []string) float64 {
	if len(samples) == 0 {
		return 0
	}

	counts := make(map[string]int, len(samples))
	mode := 0
	for _, s := range samples {
		key := Normalize(s)
		counts[key]++
		if counts[key] > mode {
			mode = counts[key]
		}
	}
	return float64(mode) / float64(len(samples))
}
