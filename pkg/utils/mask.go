package utils

import (
	"strings"
)

// MaskString replaces every rune except the first start and last end with
// mask. Strings too short to keep both ends are masked entirely.
func MaskString(str string, start, end int, mask rune) string {
	runes := []rune(str)
	if len(runes) <= start+end {
		return strings.Repeat(string(mask), len(runes))
	}
	for i := start; i < len(runes)-end; i++ {
		runes[i] = mask
	}
	return string(runes)
}

// MaskPhone keeps the prefix and the last three digits, so support staff
// reading the logs can still tell two submissions apart.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	keep := 3
	if strings.HasPrefix(phone, "+84") {
		keep = 4
	}
	return MaskString(phone, keep, 3, '*')
}

// MaskEmail masks the local part of an email address
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return MaskString(email, 0, 0, '*')
	}

	username := parts[0]
	domain := parts[1]

	if len([]rune(username)) <= 2 {
		return MaskString(username, 0, 0, '*') + "@" + domain
	}
	return MaskString(username, 1, 1, '*') + "@" + domain
}
