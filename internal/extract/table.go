package extract

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Epistemic-Technology/study-rag/internal/vectorstore"
	"github.com/Epistemic-Technology/study-rag/models"
)

const (
	// DocumentColumn identifies the source document of each row.
	DocumentColumn = "DOCUMENT"
	NotAvailable   = "Not Available"
)

// BuildTable flattens results into one row per document. Columns are the
// document label followed by the requested variables in request order.
func BuildTable(results []*models.ExtractionResult, variables []string) models.Table {
	vars := NormalizeVariables(variables)
	table := models.Table{
		Columns: append([]string{DocumentColumn}, vars...),
		Rows:    make([][]string, 0, len(results)),
	}
	for _, r := range results {
		row := make([]string, 0, len(table.Columns))
		row = append(row, r.Document)
		for _, v := range vars {
			row = append(row, FormatCell(v, r.Values[v]))
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// FormatCell renders a value for tabular output. Nested values, JSON-shaped
// strings and anything in a SUMMARY column become bulleted markdown.
func FormatCell(column string, value any) string {
	switch v := value.(type) {
	case nil:
		return NotAvailable
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.Contains(strings.ToUpper(column), "SUMMARY") || looksLikeJSON(trimmed) {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				switch decoded.(type) {
				case map[string]any, []any:
					return strings.TrimRight(JSONToMarkdown(decoded), "\n")
				}
			}
		}
		return v
	case map[string]any, []any:
		return strings.TrimRight(JSONToMarkdown(v), "\n")
	default:
		return scalar(v)
	}
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") ||
		strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

// JSONToMarkdown renders decoded JSON as nested bullets: objects become
// "- **key:** value" lines, arrays become "- item" lines, and scalars are
// written as-is. Object keys are sorted.
func JSONToMarkdown(value any) string {
	var b strings.Builder
	writeMarkdown(&b, value, 0)
	return b.String()
}

func writeMarkdown(b *strings.Builder, value any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if isNested(v[k]) {
				fmt.Fprintf(b, "%s- **%s:**\n", indent, k)
				writeMarkdown(b, v[k], depth+1)
				continue
			}
			fmt.Fprintf(b, "%s- **%s:** %s\n", indent, k, scalar(v[k]))
		}
	case []any:
		for _, item := range v {
			if isNested(item) {
				var nested strings.Builder
				writeMarkdown(&nested, item, depth+1)
				fmt.Fprintf(b, "%s- %s\n", indent, strings.TrimSpace(nested.String()))
				continue
			}
			fmt.Fprintf(b, "%s- %s\n", indent, scalar(item))
		}
	default:
		fmt.Fprintf(b, "%s%s\n", indent, scalar(v))
	}
}

func isNested(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return NotAvailable
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// WriteCSV writes the table as comma-separated values with a header row.
func WriteCSV(w io.Writer, table models.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

// ExportCSV writes the table under dir with a unique file name derived from
// the study, and returns the file path.
func ExportCSV(dir, study string, table models.Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	slug := vectorstore.Slug(study, 48)
	if slug == "" {
		slug = "study"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", slug, uuid.NewString()[:8]))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, table); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
