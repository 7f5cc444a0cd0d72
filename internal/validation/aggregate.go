// Package validation implements the planilla validation pages: the result
// aggregation core, the in-memory batch store, and the v1/v2 flows.
package validation

import (
	"sort"

	"github.com/puygroup/pila-console/internal/pila"
)

// Categories lists the result tabs in display order.
var Categories = []string{
	pila.CategoryR04,
	pila.CategoryMatriz,
	pila.CategoryLog,
	pila.CategoryR05,
	pila.CategoryR06,
	pila.CategoryR07,
	pila.CategoryR08,
}

// Merge combines the rule-validation records with the financial match
// outcomes into one record per filename. The filename set is the union of
// both sources: files only the matcher saw still get a row, and files the
// matcher skipped carry a nil match outcome regardless of what the process
// record claimed.
func Merge(process map[string]pila.ValidationRecord, match map[string]pila.MatchEntry) map[string]pila.ValidationRecord {
	merged := make(map[string]pila.ValidationRecord, len(process))
	for name, rec := range process {
		rec.Filename = name
		rec.MatchLog = nil
		if entry, ok := match[name]; ok {
			rec.MatchLog = entry.MatchLog
		}
		merged[name] = rec
	}
	for name, entry := range match {
		if _, ok := merged[name]; ok {
			continue
		}
		merged[name] = pila.ValidationRecord{Filename: name, MatchLog: entry.MatchLog}
	}
	return merged
}

// AlertCount counts the records whose outcome for the category is present
// and not strictly valid. Absent outcomes never count as alerts.
func AlertCount(records map[string]pila.ValidationRecord, category string) int {
	count := 0
	for _, rec := range records {
		present, valid := rec.Outcome(category)
		if present && !valid {
			count++
		}
	}
	return count
}

// IsFullyValid reports whether every category outcome of the record is
// absent or strictly valid.
func IsFullyValid(rec pila.ValidationRecord) bool {
	for _, cat := range Categories {
		if _, valid := rec.Outcome(cat); !valid {
			return false
		}
	}
	return true
}

// FullyValidCount counts the records that pass every present category.
func FullyValidCount(records map[string]pila.ValidationRecord) int {
	count := 0
	for _, rec := range records {
		if IsFullyValid(rec) {
			count++
		}
	}
	return count
}

// Sorted returns the records ordered by filename for stable rendering.
func Sorted(records map[string]pila.ValidationRecord) []pila.ValidationRecord {
	out := make([]pila.ValidationRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}
