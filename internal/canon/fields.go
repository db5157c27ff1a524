package canon

import (
    "encoding/json"
    "math"
    "strconv"
    "strings"

    "golang.org/x/text/cases"
    "golang.org/x/text/language"
    "golang.org/x/text/message"
)

// Row is a semi-structured record as returned by a source collection.
// Any key may be absent or nil at runtime.
type Row = map[string]any

// PriceOnRequest is rendered when a listing carries no usable price.
const PriceOnRequest = "Preço sob consulta"

// PlaceholderImage is used when an entity has no primary media item.
const PlaceholderImage = "/images/placeholder-property.svg"

// Number extracts a numeric field from a row, accepting raw numbers and
// numeric strings. NaN and non-numeric values read as absent.
func Number(r Row, key string) (float64, bool) {
    if r == nil { return 0, false }
    switch v := r[key].(type) {
    case float64:
        if math.IsNaN(v) { return 0, false }
        return v, true
    case float32:
        if math.IsNaN(float64(v)) { return 0, false }
        return float64(v), true
    case int:
        return float64(v), true
    case int64:
        return float64(v), true
    case json.Number:
        f, err := v.Float64()
        if err != nil { return 0, false }
        return f, true
    case string:
        f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
        if err != nil || math.IsNaN(f) { return 0, false }
        return f, true
    default:
        return 0, false
    }
}

// String extracts a trimmed, non-empty string field from a row.
func String(r Row, key string) (string, bool) {
    if r == nil { return "", false }
    s, ok := r[key].(string)
    if !ok { return "", false }
    s = strings.TrimSpace(s)
    if s == "" { return "", false }
    return s, true
}

// Bool extracts a boolean field, tolerating the string and numeric
// encodings older source rows use.
func Bool(r Row, key string) (bool, bool) {
    if r == nil { return false, false }
    switch v := r[key].(type) {
    case bool:
        return v, true
    case string:
        b, err := strconv.ParseBool(strings.TrimSpace(v))
        if err != nil { return false, false }
        return b, true
    case float64:
        return v != 0, true
    default:
        return false, false
    }
}

// Coerce turns a value that is either an already-structured object or a
// JSON string into a Row. Anything else, including malformed JSON, is nil.
func Coerce(v any) Row {
    switch val := v.(type) {
    case map[string]any:
        return val
    case string:
        var r Row
        if err := json.Unmarshal([]byte(val), &r); err != nil { return nil }
        return r
    default:
        return nil
    }
}

// FirstString evaluates candidates in priority order and returns the first
// present value.
func FirstString(candidates ...func() (string, bool)) (string, bool) {
    for _, c := range candidates {
        if v, ok := c(); ok { return v, true }
    }
    return "", false
}

// FirstNumber is FirstString for numeric chains.
func FirstNumber(candidates ...func() (float64, bool)) (float64, bool) {
    for _, c := range candidates {
        if v, ok := c(); ok { return v, true }
    }
    return 0, false
}

// NormalizeCEP strips non-digits and reformats an 8-digit postal code as
// NNNNN-NNN. Anything that does not reduce to 8 digits passes through
// trimmed but otherwise unchanged.
func NormalizeCEP(v string) string {
    trimmed := strings.TrimSpace(v)
    digits := DigitsOnly(trimmed)
    if len(digits) != 8 { return trimmed }
    return digits[:5] + "-" + digits[5:]
}

// DigitsOnly keeps the ASCII digits of s.
func DigitsOnly(s string) string {
    var b strings.Builder
    for _, r := range s {
        if r >= '0' && r <= '9' { b.WriteRune(r) }
    }
    return b.String()
}

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount with pt-BR grouping, e.g. "R$ 1.500.000,00".
func FormatBRL(v float64) string {
    return brl.Sprintf("R$ %.2f", v)
}

// SameText reports case-insensitive equality under Unicode case folding.
// Used to detect sources that store the city name in address slots.
func SameText(a, b string) bool {
    folder := cases.Fold()
    return folder.String(strings.TrimSpace(a)) == folder.String(strings.TrimSpace(b))
}
