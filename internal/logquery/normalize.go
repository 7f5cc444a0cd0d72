// Package logquery implements the financial-log query page: filter
// normalization, the debounced paginated controller, and its handlers.
package logquery

import (
	"strconv"
	"strings"
)

var (
	intFields = map[string]bool{
		"banco":   true,
		"periodo": true,
		"tipo":    true,
		"oper":    true,
	}
	currencyFields = map[string]bool{
		"valor_min": true,
		"valor_max": true,
	}
	dateFields = map[string]bool{
		"fecha_inicio": true,
		"fecha_fin":    true,
	}
)

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeCurrency interprets es-CO currency notation: dots are thousands
// separators and the first comma is the decimal mark.
func normalizeCurrency(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned := strings.ReplaceAll(b.String(), ".", "")
	cleaned = strings.Replace(cleaned, ",", ".", 1)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeDate compacts a YYYY-MM-DD or YYYY/MM/DD input into the YYYYMMDD
// integer the remote API expects.
func normalizeDate(s string) (int, bool) {
	cleaned := strings.NewReplacer("-", "", "/", "").Replace(s)
	v, err := strconv.Atoi(strings.TrimSpace(cleaned))
	if err != nil {
		return 0, false
	}
	return v, true
}

// NormalizeFilters maps the raw per-column filter strings into the typed
// body sent to the remote log query. Malformed values silently narrow the
// filter set instead of failing the query, so a half-typed number never
// breaks the page.
func NormalizeFilters(raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw))
	for key, val := range raw {
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		switch {
		case intFields[key]:
			digits := digitsOnly(val)
			n, err := strconv.Atoi(digits)
			if err != nil {
				continue
			}
			out[key] = n
		case currencyFields[key]:
			if v, ok := normalizeCurrency(val); ok {
				out[key] = v
			}
		case dateFields[key]:
			if v, ok := normalizeDate(val); ok {
				out[key] = v
			}
		default:
			out[key] = val
		}
	}
	return out
}
