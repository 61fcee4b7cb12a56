package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	errEmpty       = errors.New("empty value")
	errNotNumber   = errors.New("not a number")
	errNotInteger  = errors.New("not an integer")
	errNotDate     = errors.New("unrecognized date format")
	errNoCurrency  = errors.New("no currency code or symbol")
	errShortPlate  = errors.New("plate shorter than 6 characters")
	errPlateChars  = errors.New("plate contains invalid characters")
	errUnsupported = errors.New("unsupported raw value")
)

var (
	amountStrip   = regexp.MustCompile(`[^\d,.\-]`)
	europeanFmt   = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})*,\d+$`)
	englishFmt    = regexp.MustCompile(`^-?\d{1,3}(,\d{3})*\.\d+$`)
	thousandsOnly = regexp.MustCompile(`^-?\d{1,3}([.,]\d{3})+$`)
	plateChars    = regexp.MustCompile(`^[A-Z0-9]+$`)
	isoCode       = regexp.MustCompile(`(?:^|[^A-Z])([A-Z]{3})(?:[^A-Z]|$)`)
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
	"02-01-06",
	"2006/01/02",
	"2/1/2006",
	"2-1-2006",
}

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
}

var knownCodes = map[string]bool{"EUR": true, "USD": true, "GBP": true, "CHF": true}

// precisionLossError reports a string amount with more fraction digits than the field's
// scale. Value holds the rounded number; a single group like "2.500" is read as a decimal
// part, so the rounding may hide a misread thousands separator.
type precisionLossError struct {
	Value  float64
	Digits int
	Scale  int
}

func (e *precisionLossError) Error() string {
	return fmt.Sprintf("%d fraction digits rounded to scale %d", e.Digits, e.Scale)
}

// coerceDecimal parses amounts such as "68.20€", "1.234,56", "1,234.56" and "45,3".
func coerceDecimal(raw any, scale int) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return round(v, scale), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return parseAmount(v, scale)
	default:
		return 0, errUnsupported
	}
}

func parseAmount(s string, scale int) (float64, error) {
	cleaned := amountStrip.ReplaceAllString(strings.TrimSpace(s), "")
	cleaned = strings.Trim(cleaned, ".,")
	if cleaned == "" || cleaned == "-" {
		return 0, errNotNumber
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case europeanFmt.MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case englishFmt.MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma && !hasDot:
		if strings.Count(cleaned, ",") > 1 {
			return 0, errNotNumber
		}
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case hasDot && !hasComma && strings.Count(cleaned, ".") > 1:
		if !thousandsOnly.MatchString(cleaned) {
			return 0, errNotNumber
		}
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	case hasComma && hasDot:
		// Mixed separators in an unusual grouping: the last one is the decimal mark.
		lastComma := strings.LastIndex(cleaned, ",")
		lastDot := strings.LastIndex(cleaned, ".")
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotNumber
	}
	rounded := round(v, scale)
	if i := strings.IndexByte(cleaned, '.'); i >= 0 && scale >= 0 {
		if digits := len(cleaned) - i - 1; digits > scale {
			return rounded, &precisionLossError{Value: rounded, Digits: digits, Scale: scale}
		}
	}
	return rounded, nil
}

// coerceInteger accepts digits with optional thousands separators and a unit suffix ("123.456 km").
func coerceInteger(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, errNotInteger
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		s = strings.TrimSuffix(s, "km")
		s = strings.TrimSpace(s)
		if thousandsOnly.MatchString(s) {
			s = strings.NewReplacer(".", "", ",", "").Replace(s)
		}
		s = strings.Join(strings.Fields(s), "")
		if s == "" {
			return 0, errEmpty
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, errNotInteger
		}
		return n, nil
	default:
		return 0, errUnsupported
	}
}

// coerceDate returns YYYY-MM-DD. Only day-first and ISO layouts are recognized.
func coerceDate(raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", errUnsupported
	}
	s = strings.TrimSpace(s)
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", errNotDate
}

// coerceCurrency maps an ISO code, a currency word, or a symbol embedded in an amount.
func coerceCurrency(raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", errUnsupported
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errEmpty
	}
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			return cs.code, nil
		}
	}
	upper := strings.ToUpper(s)
	if strings.Contains(upper, "EURO") {
		return "EUR", nil
	}
	for _, m := range isoCode.FindAllStringSubmatch(upper, -1) {
		if knownCodes[m[1]] {
			return m[1], nil
		}
	}
	return "", errNoCurrency
}

func coercePlate(raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", errUnsupported
	}
	plate := NormalizePlate(s)
	if plate == "" {
		return "", errEmpty
	}
	if !plateChars.MatchString(plate) {
		return "", errPlateChars
	}
	if len(plate) < 6 {
		return "", errShortPlate
	}
	return plate, nil
}

// NormalizePlate upper-cases a license plate and drops whitespace and dashes.
func NormalizePlate(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "", " ", "", "\t", "").Replace(s)
	return s
}

func coerceText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		s := strings.Join(strings.Fields(v), " ")
		if s == "" {
			return "", errEmpty
		}
		return s, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", errUnsupported
	}
}

func round(v float64, scale int) float64 {
	if scale < 0 {
		return v
	}
	p := math.Pow10(scale)
	return math.Round(v*p) / p
}

func describe(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
