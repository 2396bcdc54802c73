package workflow

// Capability records whether a modality flows into and out of a graph.
type Capability struct {
	Input  bool `json:"input"`
	Output bool `json:"output"`
}

// CapabilitySet maps every modality to its capability. It is derived
// once per active graph and cached by the pipeline; the cache is
// invalidated exactly when the graph is replaced.
type CapabilitySet map[Modality]Capability

// NewCapabilitySet returns a set with every modality denied.
func NewCapabilitySet() CapabilitySet {
	set := make(CapabilitySet, len(Modalities))
	for _, m := range Modalities {
		set[m] = Capability{}
	}
	return set
}

// DetectModalities scans class-type membership against the per-modality
// registries and reports which modalities the graphs accept as input and
// produce as output. Capabilities OR-merge across graphs when more than
// one is active simultaneously. Detection is independent of validation:
// it is the detector, not the validator, that governs whether a
// modality's frames are routed into the backend at all.
func DetectModalities(graphs ...Graph) CapabilitySet {
	set := NewCapabilitySet()
	for _, g := range graphs {
		for _, node := range g {
			role := RoleOf(node.ClassType)
			if m, ok := role.InputModality(); ok {
				cap := set[m]
				cap.Input = true
				set[m] = cap
			}
			if m, ok := role.OutputModality(); ok {
				cap := set[m]
				cap.Output = true
				set[m] = cap
			}
		}
	}
	return set
}

// AcceptsInput reports whether the set accepts the modality as input.
func (s CapabilitySet) AcceptsInput(m Modality) bool {
	return s[m].Input
}

// ProducesOutput reports whether the set produces the modality as output.
func (s CapabilitySet) ProducesOutput(m Modality) bool {
	return s[m].Output
}

// Merge ORs another capability set into this one and returns the result.
func (s CapabilitySet) Merge(other CapabilitySet) CapabilitySet {
	for m, cap := range other {
		cur := s[m]
		cur.Input = cur.Input || cap.Input
		cur.Output = cur.Output || cap.Output
		s[m] = cur
	}
	return s
}
