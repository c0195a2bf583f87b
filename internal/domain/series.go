package domain

// SeriesDescriptor describes one DICOM series found in the input
// directory. It is built once per distinct SeriesInstanceUID and is
// immutable for the lifetime of a run.
type SeriesDescriptor struct {
	// SeriesInstanceUID groups the instances into one acquisition
	SeriesInstanceUID string

	// Attributes maps DICOM tag keywords to their string form, taken
	// from a representative instance of the series
	Attributes map[string]string

	// FilePaths lists the instance files, ordered by InstanceNumber
	FilePaths []string
}

// Attribute returns the value for a tag keyword and whether it was present
func (s SeriesDescriptor) Attribute(tag string) (string, bool) {
	v, ok := s.Attributes[tag]
	return v, ok
}

// Description returns the SeriesDescription attribute, or "Unknown"
// when the series carries none.
func (s SeriesDescriptor) Description() string {
	if v, ok := s.Attributes["SeriesDescription"]; ok && v != "" {
		return v
	}
	return "Unknown"
}
