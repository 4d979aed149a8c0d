// Package validation implements the field validators and text sanitizers
// required before any user-supplied value touches the store (spec.md §4.1).
// Regex-based detection is used throughout rather than a templating or
// parser library — there is no third-party dependency in the example corpus
// for single-field phone/address/injection validation, so this concern
// stays on the standard library (see DESIGN.md).
package validation

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	phoneCleanRe  = regexp.MustCompile(`[\s-]`)
	phoneLocalRe  = regexp.MustCompile(`^0\d{8,9}$`)
	phoneIntlRe   = regexp.MustCompile(`^972\d{8,9}$`)
	phonePlusRe   = regexp.MustCompile(`^\+972\d{8,9}$`)
)

// PhoneValidate reports whether s is a valid Israeli phone number in any of
// the accepted forms: 0XXXXXXXXX, 972XXXXXXXXX, +972XXXXXXXXX (with
// optional spaces/dashes).
func PhoneValidate(s string) bool {
	cleaned := phoneCleanRe.ReplaceAllString(strings.TrimSpace(s), "")
	return phoneLocalRe.MatchString(cleaned) || phoneIntlRe.MatchString(cleaned) || phonePlusRe.MatchString(cleaned)
}

// PhoneNormalize converts any accepted form into the canonical "+972..."
// form. Idempotent: PhoneNormalize(PhoneNormalize(x)) == PhoneNormalize(x).
func PhoneNormalize(s string) (string, error) {
	cleaned := phoneCleanRe.ReplaceAllString(strings.TrimSpace(s), "")
	switch {
	case phonePlusRe.MatchString(cleaned):
		return cleaned, nil
	case phoneIntlRe.MatchString(cleaned):
		return "+" + cleaned, nil
	case phoneLocalRe.MatchString(cleaned):
		return "+972" + cleaned[1:], nil
	default:
		return "", fmt.Errorf("invalid phone number: %q", s)
	}
}

// PhoneMask returns the canonical prefix with the last 4 digits replaced by
// "*", e.g. "+972501234567" -> "+97250123****".
func PhoneMask(s string) string {
	normalized, err := PhoneNormalize(s)
	if err != nil {
		// Still mask whatever we have rather than leak raw digits.
		normalized = phoneCleanRe.ReplaceAllString(strings.TrimSpace(s), "")
	}
	if len(normalized) <= 4 {
		return strings.Repeat("*", len(normalized))
	}
	keep := normalized[:len(normalized)-4]
	return keep + "****"
}

// PhonePlaceholder returns a deterministic placeholder phone for users
// without a real phone number: "tg:<chat_id>" when short enough, otherwise
// "tg:" followed by 17 hex characters of SHA1(chat_id).
func PhonePlaceholder(chatID string) (string, error) {
	if chatID == "" {
		return "", fmt.Errorf("chat id must not be empty")
	}
	candidate := "tg:" + chatID
	if len(candidate) <= 20 {
		return candidate, nil
	}
	sum := sha1.Sum([]byte(chatID))
	return "tg:" + hex.EncodeToString(sum[:])[:17], nil
}
