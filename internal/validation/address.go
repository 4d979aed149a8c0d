package validation

import "strings"

// addressAbbreviations maps common Hebrew street abbreviations to their full
// form, applied during normalization.
var addressAbbreviations = map[string]string{
	"רח'":  "רחוב",
	"רח׳":  "רחוב",
	"שד'":  "שדרות",
	"שד׳":  "שדרות",
	"דר'":  "דרך",
}

// AddressValidate reports whether s is a plausible street address: length
// between 5 and 200 characters after trimming, and free of SQL/XSS
// injection patterns (§4.1's injection-detection contract).
func AddressValidate(s string) bool {
	trimmed := strings.TrimSpace(s)
	n := len([]rune(trimmed))
	if n < 5 || n > 200 {
		return false
	}
	safe, _ := CheckForInjection(trimmed)
	return safe
}

// AddressNormalize trims whitespace, collapses internal runs of spaces, and
// expands known abbreviations.
func AddressNormalize(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if full, ok := addressAbbreviations[f]; ok {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}
