package manifest

// Summary aggregates a manifest for reporting.
type Summary struct {
	Images    int
	Variants  int
	Outputs   int
	ByFormat  map[string]int // MIME type -> outputs
	ByDensity map[string]int // density label -> outputs
	ByVariant map[string]int // variant name -> images
}

// Summarize counts images, variants and outputs.
func Summarize(m *Manifest) Summary {
	s := Summary{
		ByFormat:  map[string]int{},
		ByDensity: map[string]int{},
		ByVariant: map[string]int{},
	}
	for _, variants := range m.Snapshot() {
		s.Images++
		for name, v := range variants {
			s.Variants++
			s.ByVariant[name]++
			for mime, densities := range v.Formats {
				for label := range densities {
					s.Outputs++
					s.ByFormat[mime]++
					s.ByDensity[label]++
				}
			}
		}
	}
	return s
}
