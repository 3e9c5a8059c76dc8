// Package rowprocessor implements the Row Processor: per-chunk
// validation, intra-file + cross-file duplicate detection, bulk
// insertion, counter maintenance, and event emission.
package rowprocessor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tabimport/internal/mapping"
)

var placaPattern = regexp.MustCompile(`^[A-Z]{3}[0-9][A-Z0-9][0-9]{2}$`)

// ValidatePlaca checks the Mercosul plate pattern.
func ValidatePlaca(placa string) bool {
	return placaPattern.MatchString(strings.ToUpper(strings.TrimSpace(placa)))
}

// ValidateAno checks the year is within [1900, currentYear+1].
func ValidateAno(ano, currentYear int) bool {
	return ano >= 1900 && ano <= currentYear+1
}

// ValidateMonetary checks a decimal/float value is strictly positive.
func ValidateMonetary(v float64) bool {
	return v > 0
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
}

var truthyWords = map[string]bool{
	"true": true, "1": true, "yes": true, "sim": true,
}

var falsyWords = map[string]bool{
	"false": true, "0": true, "no": true, "não": true, "nao": true,
}

// CoerceString trims the raw value.
func CoerceString(raw string) string {
	return strings.TrimSpace(raw)
}

// CoerceInt accepts integral decimals without a fractional part.
func CoerceInt(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer (has fractional part): %q", raw)
	}
	return int64(f), nil
}

// CoerceDecimal, used for both float and decimal columns, accepts
// either dot- or comma-decimals after trimming currency/thousand
// separators.
func CoerceDecimal(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case 'R', '$', ' ':
			return -1
		}
		return r
	}, s)

	// Comma-decimal with dot thousands (pt-BR: "1.234,56") vs plain
	// dot-decimal with comma thousands ("1,234.56"): the decimal
	// separator is whichever of , or . appears last.
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma:
		s = strings.ReplaceAll(s, ",", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a decimal: %q", raw)
	}
	return f, nil
}

// CoerceDate accepts ISO-8601 and common regional variants.
func CoerceDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a recognized date: %q", raw)
}

// CoerceDatetime accepts ISO-8601 and common regional variants.
func CoerceDatetime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return CoerceDate(s)
}

// CoerceBoolean accepts {true,false,1,0,yes,no,sim,não} case-insensitively.
func CoerceBoolean(raw string) (bool, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if truthyWords[s] {
		return true, nil
	}
	if falsyWords[s] {
		return false, nil
	}
	return false, fmt.Errorf("not a recognized boolean: %q", raw)
}

// NormalizeKey returns the duplicate-detection key for a unique
// column's raw value: trim + case-fold for textual keys. The type
// distinction between textual and numeric/temporal keys only matters
// for case-folding; trimming is always safe.
func NormalizeKey(colType mapping.ColumnType, raw string) string {
	s := strings.TrimSpace(raw)
	switch colType {
	case mapping.TypeString:
		return strings.ToLower(s)
	default:
		return s
	}
}
