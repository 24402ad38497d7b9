package intent

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	codeToken  = regexp.MustCompile(`[A-Za-z0-9]+(?:[-_][A-Za-z0-9]+)+`)
	idToken    = regexp.MustCompile(`(?:^|[\s#:])#?(\d{1,10})(?:$|[\s.,!?)])`)
	numericID  = regexp.MustCompile(`^\d{1,10}$`)
	codeFiller = regexp.MustCompile(`[\s_]+`)
)

// ExtractOrderCode returns the first token shaped like an order code: letters
// and digits joined by '-' or '_', with at least one of each. Dates and
// hyphenated words do not qualify.
func ExtractOrderCode(utterance string) (string, bool) {
	for _, tok := range codeToken.FindAllString(utterance, -1) {
		if hasLetterAndDigit(tok) {
			return tok, true
		}
	}
	return "", false
}

// ExtractOrderID returns a standalone 1-10 digit number, optionally prefixed
// by '#'.
func ExtractOrderID(utterance string) (string, bool) {
	m := idToken.FindStringSubmatch(" " + utterance + " ")
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsNumericID reports whether s is a bare order id.
func IsNumericID(s string) bool {
	return numericID.MatchString(s)
}

// CanonicalCode is the comparison key for order codes: trimmed, runs of
// whitespace or underscores collapsed to one hyphen, upper-cased. So
// "ord_ab12" and "ORD AB12" both become "ORD-AB12".
func CanonicalCode(code string) string {
	return strings.ToUpper(codeFiller.ReplaceAllString(strings.TrimSpace(code), "-"))
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
