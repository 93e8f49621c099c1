package citations

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Epistemic-Technology/study-rag/models"
)

// GenerateBibTeXEntry renders one record as a BibTeX entry. Bibliography
// records become @article entries; PDF records become @misc entries that
// point at their source file.
func GenerateBibTeXEntry(record models.SourceRecord, citekey string) string {
	if citekey == "" {
		citekey = "unknown"
	}
	entryType := "article"
	if record.Kind == models.KindPDF {
		entryType = "misc"
	}

	var fields []string
	add := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fields = append(fields, fmt.Sprintf("  %s = {%s}", name, value))
		}
	}

	add("title", escapeBibTeX(record.Title))
	add("author", formatBibTeXAuthors(record.Authors))
	add("year", extractYear(record.YearOrDate))
	add("doi", record.DOI)
	if record.Kind == models.KindPDF {
		add("file", record.SourceFile)
		if record.PageCount > 0 {
			add("pagetotal", strconv.Itoa(record.PageCount))
		}
	}
	add("abstract", escapeBibTeX(record.Abstract))

	return fmt.Sprintf("@%s{%s,\n%s\n}\n", entryType, citekey, strings.Join(fields, ",\n"))
}

// formatBibTeXAuthors joins authors as "Last, First and Last, First".
func formatBibTeXAuthors(authors []string) string {
	formatted := make([]string, 0, len(authors))
	for _, author := range authors {
		author = strings.TrimSpace(author)
		if author == "" {
			continue
		}
		if strings.Contains(author, ",") {
			formatted = append(formatted, author)
			continue
		}
		parts := strings.Fields(author)
		if len(parts) == 1 {
			formatted = append(formatted, parts[0])
			continue
		}
		formatted = append(formatted, parts[len(parts)-1]+", "+strings.Join(parts[:len(parts)-1], " "))
	}
	return strings.Join(formatted, " and ")
}

var bibtexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	"%", `\%`,
	"&", `\&`,
	"_", `\_`,
	"$", `\$`,
	"#", `\#`,
)

// escapeBibTeX escapes LaTeX special characters. Braces are left alone so
// authors can protect capitalisation.
func escapeBibTeX(text string) string {
	return bibtexEscaper.Replace(text)
}

// GenerateBibTeXFile renders every record of a study with unique citekeys,
// in record order.
func GenerateBibTeXFile(study string, records []models.SourceRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%% BibTeX bibliography for study %s\n", study)
	b.WriteString("% Generated by study-rag\n")

	existing := make(map[string]bool, len(records))
	for _, record := range records {
		key := GenerateCitekey(record, existing)
		existing[key] = true
		b.WriteString("\n")
		b.WriteString(GenerateBibTeXEntry(record, key))
	}
	return b.String()
}
