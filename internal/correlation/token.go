// Package correlation ties derived ledger transactions back to the transaction they
// were computed from, through a token kept in the derived row's imported
// description.
package correlation

import "strings"

const (
	// Prefix starts every token and introduces the original transaction id.
	Prefix = "ref:"
	// ExternalPrefix introduces the mirrored Splitter expense id.
	ExternalPrefix = "ext:"

	separator = "|"
)

// BuildToken returns "ref:<originalID>" or "ref:<originalID>|ext:<externalID>".
func BuildToken(originalID, externalID string) string {
	if externalID == "" {
		return Prefix + originalID
	}
	return Prefix + originalID + separator + ExternalPrefix + externalID
}

// ParseToken extracts the ids from text. A nil or malformed token yields (nil, nil);
// unknown segments are ignored. The external id is nil when the segment is missing.
func ParseToken(text *string) (originalID, externalID *string) {
	if text == nil || !strings.HasPrefix(*text, Prefix) {
		return nil, nil
	}
	for _, segment := range strings.Split(*text, separator) {
		switch {
		case strings.HasPrefix(segment, Prefix):
			if originalID == nil {
				id := strings.TrimPrefix(segment, Prefix)
				originalID = &id
			}
		case strings.HasPrefix(segment, ExternalPrefix):
			if externalID == nil {
				id := strings.TrimPrefix(segment, ExternalPrefix)
				externalID = &id
			}
		}
	}
	if originalID == nil || *originalID == "" {
		return nil, nil
	}
	if externalID != nil && *externalID == "" {
		externalID = nil
	}
	return originalID, externalID
}

// Parse is ParseToken for plain strings; empty ids mean absent.
func Parse(text string) (originalID, externalID string) {
	o, e := ParseToken(&text)
	if o != nil {
		originalID = *o
	}
	if e != nil {
		externalID = *e
	}
	return originalID, externalID
}

// IsToken reports whether text carries a correlation token.
func IsToken(text string) bool {
	o, _ := ParseToken(&text)
	return o != nil
}
