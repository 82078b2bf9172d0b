package facematch

import (
	"strings"
	"unicode"

	"github.com/kozaktomas/face-engine/internal/database"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel normalizes a label for lookup (lowercase, no diacritics,
// spaces for dashes, single spaces). Stored labels are never rewritten.
func NormalizeLabel(label string) string {
	label = RemoveDiacritics(label)
	label = strings.ToLower(label)
	label = strings.ReplaceAll(label, "-", " ")
	return strings.Join(strings.Fields(label), " ")
}

// MatchLabels returns the labels whose normalized form equals the normalized query,
// so "jan-novak" finds "Jan Novák".
func MatchLabels(labels []database.LabelCount, query string) []database.LabelCount {
	want := NormalizeLabel(query)
	if want == "" {
		return nil
	}
	var out []database.LabelCount
	for _, lc := range labels {
		if NormalizeLabel(lc.Label) == want {
			out = append(out, lc)
		}
	}
	return out
}
