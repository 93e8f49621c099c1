package citations

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/Epistemic-Technology/study-rag/models"
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// GenerateCitekey creates a pandoc-style citekey for a record:
// "smith2020", "smithJones2021" or "smithEtAl2020". Keys already in existing
// get a letter suffix (a..z), then a numeric one.
func GenerateCitekey(record models.SourceRecord, existing map[string]bool) string {
	base := sanitizeCitekey(authorPart(record.Authors) + extractYear(record.YearOrDate))

	if !existing[base] {
		return base
	}
	for suffix := 'a'; suffix <= 'z'; suffix++ {
		if key := base + string(suffix); !existing[key] {
			return key
		}
	}
	for n := 1; ; n++ {
		if key := base + "z" + strconv.Itoa(n); !existing[key] {
			return key
		}
	}
}

// extractYear returns the first plausible four-digit year in a date string.
func extractYear(date string) string {
	return yearPattern.FindString(date)
}

// authorPart: one author gives the last name, two give both, three or more
// give the first plus "EtAl".
func authorPart(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return lastName(authors[0])
	case 2:
		return lastName(authors[0]) + capitalize(lastName(authors[1]))
	default:
		return lastName(authors[0]) + "EtAl"
	}
}

// lastName extracts a camel-cased last name from "Last, First",
// "First Last" or "Last"; "von Neumann, John" becomes "vonNeumann".
func lastName(author string) string {
	author = strings.TrimSpace(author)
	var last string
	if before, _, found := strings.Cut(author, ","); found {
		last = strings.TrimSpace(before)
	} else if parts := strings.Fields(author); len(parts) > 0 {
		last = parts[len(parts)-1]
	}

	parts := strings.Fields(last)
	if len(parts) == 0 {
		return ""
	}
	result := strings.ToLower(parts[0])
	for _, p := range parts[1:] {
		result += capitalize(strings.ToLower(p))
	}
	return result
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

// sanitizeCitekey keeps letters, digits and underscores. Keys never start
// with a digit and are never empty.
func sanitizeCitekey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	sanitized := b.String()
	if sanitized == "" {
		return "unknown"
	}
	if unicode.IsDigit(rune(sanitized[0])) {
		sanitized = "ref" + sanitized
	}
	return sanitized
}
