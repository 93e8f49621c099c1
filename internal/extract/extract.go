// Package extract pulls a caller-chosen set of named variables out of whole
// documents and aggregates the results into a table.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Epistemic-Technology/study-rag/internal/llm"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/models"
)

const (
	DefaultChunkSize    = 10000
	DefaultChunkOverlap = 100
	// Stuffed prompts above this many characters are truncated.
	DefaultMaxStuffChars = 400000
)

// ErrNoVariables is returned when extraction is requested without variables.
var ErrNoVariables = errors.New("no variables requested")

// ExtractionParseError records model output that was not a JSON object.
// The extractor recovers from it by treating the output as empty.
type ExtractionParseError struct {
	Raw string
	Err error
}

func (e *ExtractionParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("failed to parse extraction output as JSON: %v (output: %q)", e.Err, raw)
}

func (e *ExtractionParseError) Unwrap() error { return e.Err }

// Extractor runs the two-pass extraction against a completion service.
type Extractor struct {
	completer llm.Completer
	loader    Loader
	log       logger.Logger

	ChunkSize     int
	ChunkOverlap  int
	MaxStuffChars int
}

// NewExtractor returns an Extractor. loader may be nil if every Document
// carries its text inline.
func NewExtractor(completer llm.Completer, loader Loader, log logger.Logger) *Extractor {
	return &Extractor{
		completer:     completer,
		loader:        loader,
		log:           log.With("extract"),
		ChunkSize:     DefaultChunkSize,
		ChunkOverlap:  DefaultChunkOverlap,
		MaxStuffChars: DefaultMaxStuffChars,
	}
}

// Extract returns a value for every requested variable found in text. The
// result always has exactly the normalised variables as keys; variables the
// model did not report are nil.
func (x *Extractor) Extract(ctx context.Context, text string, variables []string) (*models.ExtractionResult, error) {
	vars := NormalizeVariables(variables)
	if len(vars) == 0 {
		return nil, ErrNoVariables
	}

	stuffed := x.stuff(text)
	x.log.Debug("Extracting %d variables from %d chars", len(vars), len(stuffed))

	summary, err := x.completer.Complete(ctx, summaryPrompt(stuffed, vars), llm.FormatFreeText)
	if err != nil {
		return nil, llm.ClassifyError("completion", err)
	}

	raw, err := x.completer.Complete(ctx, jsonPrompt(summary, vars), llm.FormatJSONObject)
	if err != nil {
		return nil, llm.ClassifyError("completion", err)
	}

	parsed, err := ParseObject(raw)
	if err != nil {
		x.log.Warn("%v", err)
		parsed = map[string]any{}
	}

	return &models.ExtractionResult{Values: Backfill(parsed, vars)}, nil
}

// stuff splits text into overlapping chunks and concatenates them into a
// single prompt body.
func (x *Extractor) stuff(text string) string {
	chunks := SplitText(text, x.ChunkSize, x.ChunkOverlap)
	stuffed := strings.Join(chunks, "\n\n")
	if x.MaxStuffChars > 0 && len(stuffed) > x.MaxStuffChars {
		x.log.Warn("Document text of %d chars truncated to %d for extraction", len(stuffed), x.MaxStuffChars)
		stuffed = truncateRunes(stuffed, x.MaxStuffChars)
	}
	return stuffed
}

// ParseObject parses model output as a JSON object, tolerating markdown
// fences and surrounding prose. Keys are upper-cased.
func ParseObject(raw string) (map[string]any, error) {
	body := stripFences(raw)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, &ExtractionParseError{Raw: raw, Err: err}
	}
	if obj == nil {
		return nil, &ExtractionParseError{Raw: raw, Err: errors.New("output is null")}
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out, nil
}

// Backfill keeps exactly the requested variables: missing, null or blank
// values become nil and unrequested keys are dropped.
func Backfill(parsed map[string]any, variables []string) map[string]any {
	values := make(map[string]any, len(variables))
	for _, v := range variables {
		val, ok := parsed[v]
		if !ok || isBlank(val) {
			values[v] = nil
			continue
		}
		values[v] = val
	}
	return values
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string, e.g. ```json
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// NormalizeVariables trims and upper-cases names, dropping blanks and
// duplicates while keeping first-seen order.
func NormalizeVariables(variables []string) []string {
	out := make([]string, 0, len(variables))
	seen := make(map[string]bool, len(variables))
	for _, v := range variables {
		name := strings.ToUpper(strings.TrimSpace(v))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// SplitText cuts text into chunks of at most size runes, each starting
// overlap runes before the previous one ended.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
