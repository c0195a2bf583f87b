package logger

// Patient-identifying DICOM attributes must never reach a log line in
// clear text. The set covers what the inventory extracts plus the
// common identifying tags a series header may carry.
var phiTags = map[string]bool{
	"PatientName":      true,
	"PatientID":        true,
	"PatientBirthDate": true,
	"PatientAddress":   true,
	"PatientSex":       true,
	"OtherPatientIDs":  true,
	"AccessionNumber":  true,
}

const masked = "[redacted]"

// RedactAttributes returns a copy of a DICOM attribute map with
// patient-identifying values masked. The input map is not modified.
func RedactAttributes(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if phiTags[k] && v != "" {
			out[k] = masked
		} else {
			out[k] = v
		}
	}
	return out
}

// IsPHITag reports whether a tag keyword is treated as patient-identifying
func IsPHITag(tag string) bool {
	return phiTags[tag]
}
