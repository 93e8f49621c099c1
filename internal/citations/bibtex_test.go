package citations

import (
	"strings"
	"testing"

	"github.com/Epistemic-Technology/study-rag/models"
)

func TestGenerateBibTeXEntry(t *testing.T) {
	tests := []struct {
		name        string
		record      models.SourceRecord
		citekey     string
		wantContain []string
		wantAbsent  []string
	}{
		{
			name: "bibliography record",
			record: models.SourceRecord{
				Kind:       models.KindBibliography,
				Title:      "Measles Coverage & Drop-out",
				Authors:    []string{"John Smith", "Jones, Mary"},
				YearOrDate: "2020-06-01",
				DOI:        "10.1234/mcd.2020",
				Abstract:   "Coverage was 85% overall.",
			},
			citekey: "smithJones2020",
			wantContain: []string{
				"@article{smithJones2020,",
				"title = {Measles Coverage \\& Drop-out}",
				"author = {Smith, John and Jones, Mary}",
				"year = {2020}",
				"doi = {10.1234/mcd.2020}",
				"abstract = {Coverage was 85\\% overall.}",
			},
			wantAbsent: []string{"file =", "pagetotal"},
		},
		{
			name: "pdf record",
			record: models.SourceRecord{
				Kind:       models.KindPDF,
				Title:      "Plasma_Trial Report",
				SourceFile: "/data/trial.pdf",
				PageCount:  12,
			},
			citekey: "",
			wantContain: []string{
				"@misc{unknown,",
				"title = {Plasma\\_Trial Report}",
				"file = {/data/trial.pdf}",
				"pagetotal = {12}",
			},
			wantAbsent: []string{"author =", "year =", "doi ="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateBibTeXEntry(tt.record, tt.citekey)
			for _, want := range tt.wantContain {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateBibTeXEntry() missing %q:\n%s", want, got)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("GenerateBibTeXEntry() should not contain %q:\n%s", absent, got)
				}
			}
			if !strings.HasSuffix(got, "\n}\n") {
				t.Errorf("GenerateBibTeXEntry() not properly closed: %s", got)
			}
			if strings.Contains(got, ",\n}") {
				t.Errorf("GenerateBibTeXEntry() has a trailing comma: %s", got)
			}
		})
	}
}

func TestFormatBibTeXAuthors(t *testing.T) {
	tests := []struct {
		authors []string
		want    string
	}{
		{nil, ""},
		{[]string{"John Smith"}, "Smith, John"},
		{[]string{"Smith, John"}, "Smith, John"},
		{[]string{"Mary Ann Jones", "Plato"}, "Jones, Mary Ann and Plato"},
		{[]string{" ", "Ada Lovelace"}, "Lovelace, Ada"},
	}
	for _, tt := range tests {
		if got := formatBibTeXAuthors(tt.authors); got != tt.want {
			t.Errorf("formatBibTeXAuthors(%v) = %q, want %q", tt.authors, got, tt.want)
		}
	}
}

func TestEscapeBibTeX(t *testing.T) {
	tests := map[string]string{
		"50% & more":  `50\% \& more`,
		"a_b $5 #1":   `a\_b \$5 \#1`,
		`back\slash`:  `back\textbackslash{}slash`,
		"{Protected}": "{Protected}",
	}
	for in, want := range tests {
		if got := escapeBibTeX(in); got != want {
			t.Errorf("escapeBibTeX(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateBibTeXFile(t *testing.T) {
	records := []models.SourceRecord{
		{Kind: models.KindBibliography, Title: "First", Authors: []string{"Smith, J."}, YearOrDate: "2020"},
		{Kind: models.KindBibliography, Title: "Second", Authors: []string{"Smith, K."}, YearOrDate: "2020"},
		{Kind: models.KindBibliography, Title: "Third", Authors: []string{"Lee, A."}, YearOrDate: "2019"},
	}
	got := GenerateBibTeXFile("Vaccine Coverage", records)

	if !strings.HasPrefix(got, "% BibTeX bibliography for study Vaccine Coverage\n") {
		t.Errorf("missing header:\n%s", got)
	}
	for _, want := range []string{"@article{smith2020,", "@article{smith2020a,", "@article{lee2019,"} {
		if !strings.Contains(got, want) {
			t.Errorf("GenerateBibTeXFile() missing %q", want)
		}
	}
	if strings.Index(got, "title = {First}") > strings.Index(got, "title = {Third}") {
		t.Error("entries should keep record order")
	}
}
