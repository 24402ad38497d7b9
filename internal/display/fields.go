package display

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"storebot/pkg/payload"
)

// firstPresent returns the first candidate field that exists and is not null.
func firstPresent(rec payload.Value, candidates []string) (payload.Value, bool) {
	for _, name := range candidates {
		if v, ok := rec.Get(name); ok && !v.IsNull() {
			return v, true
		}
	}
	return payload.Value{}, false
}

// firstString returns the first candidate that renders as non-blank text.
func firstString(rec payload.Value, candidates []string) string {
	for _, name := range candidates {
		v, ok := rec.Get(name)
		if !ok {
			continue
		}
		if s, ok := v.AsString(); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		// nested {"name": "..."} shapes, e.g. author objects
		if v.IsObject() {
			if s := firstString(v, []string{"name", "title", "label"}); s != "" {
				return s
			}
		}
	}
	return ""
}

// ExtractDigits keeps only the ASCII digits of s and parses them. Decorated
// currency such as "200.000 đ" yields 200000; no digits yields 0.
func ExtractDigits(s string) int64 {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(sb.String(), 10, 64)
	if err != nil {
		return math.MaxInt64
	}
	return n
}

// money resolves a money-like value to non-negative minor units.
func money(v payload.Value) int64 {
	switch v.Kind() {
	case payload.KindNumber:
		f, ok := v.AsFloat()
		if !ok || f <= 0 {
			return 0
		}
		if f >= math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(math.Round(f))
	case payload.KindString:
		s, _ := v.AsString()
		return ExtractDigits(s)
	case payload.KindObject:
		if inner, ok := firstPresent(v, []string{"amount", "value", "total"}); ok {
			return money(inner)
		}
	}
	return 0
}

func count(v payload.Value) (int, bool) {
	switch v.Kind() {
	case payload.KindArray:
		return v.Len(), true
	case payload.KindNumber, payload.KindString:
		n, ok := v.AsInt()
		if !ok || n < 0 {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

func timestamp(v payload.Value) *time.Time {
	switch v.Kind() {
	case payload.KindNumber:
		secs, ok := v.AsInt()
		if !ok || secs <= 0 {
			return nil
		}
		// millisecond epochs from JS backends
		if secs > 1e12 {
			t := time.UnixMilli(secs).UTC()
			return &t
		}
		t := time.Unix(secs, 0).UTC()
		return &t
	case payload.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
		if isAllDigits(s) {
			return timestamp(payload.FromAny(ExtractDigits(s)))
		}
	}
	return nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
