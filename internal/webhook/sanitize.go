package webhook

import "strings"

// SanitizeTag normalizes a free-text alert tag into the uppercase
// '#'-prefixed token used to correlate Cornix commands with strategy
// instances: "nr.3 short" becomes "#NR.3 SHORT".
func SanitizeTag(tag string) string {
	return "#" + strings.ToUpper(strings.TrimLeft(tag, "#"))
}
