package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/study-rag/internal/index"
	"github.com/Epistemic-Technology/study-rag/internal/llm"
	"github.com/Epistemic-Technology/study-rag/internal/llm/llmtest"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/segment"
	"github.com/Epistemic-Technology/study-rag/internal/vectorstore"
	"github.com/Epistemic-Technology/study-rag/models"
)

const bibliographyBundle = `[
  {"id": "ebola", "title": "Convalescent plasma in Ebola virus disease", "authors": ["Smith, J"], "year": "2016",
   "abstract": "Ebola treatment trial.",
   "full_text": "Ebola is a viral haemorrhagic fever. Ebola patients received convalescent plasma. Outcomes of Ebola were recorded."},
  {"id": "empty", "title": "No attachment", "authors": ["Doe, A"], "abstract": "", "full_text": ""}
]`

const pdfBundle = `[
  {"title": "Plasma trial report", "authors": ["Lee, K"], "date": "2020-01-01",
   "source_file": "/data/trial.pdf", "page_count": 5,
   "pages": {
     "0": "Introduction to the trial design.",
     "1": "Methods and recruitment of participants.",
     "2": "Table 1: Sample size = 120. The sample size was calculated for power.",
     "3": "Results on survival.",
     "4": "Discussion and limitations."
   }}
]`

type fixture struct {
	engine    *Engine
	completer *llmtest.ScriptedCompleter
	builder   *index.Builder
}

func newFixture(t *testing.T, completer *llmtest.ScriptedCompleter) *fixture {
	t.Helper()
	log := logger.NewNoOpLogger()
	store := vectorstore.NewMemoryStore(log)
	embedder := &llmtest.HashEmbedder{}
	return &fixture{
		engine:    NewEngine(store, embedder, completer, log),
		completer: completer,
		builder:   index.NewBuilder(store, embedder, segment.New(0, 0, 3, log), nil, log),
	}
}

func (f *fixture) build(t *testing.T, study, content string) *models.Collection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	col, err := f.builder.GetOrBuild(context.Background(), study, path)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	return col
}

func TestQuery_BibliographySourceInfo(t *testing.T) {
	f := newFixture(t, &llmtest.ScriptedCompleter{Responses: []string{"Ebola virus disease is discussed [1]."}})
	col := f.build(t, "Ebola Virus", bibliographyBundle)

	resp, err := f.engine.Query(context.Background(), col, "What diseases are discussed?", VariantDefault)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.AnswerText != "Ebola virus disease is discussed [1]." {
		t.Errorf("AnswerText = %q", resp.AnswerText)
	}
	if resp.SourceInfo == nil {
		t.Fatal("expected source info")
	}
	if resp.SourceInfo.Title != "Convalescent plasma in Ebola virus disease" {
		t.Errorf("SourceInfo.Title = %q", resp.SourceInfo.Title)
	}
	if resp.SourceInfo.PageNumber != nil {
		t.Errorf("bibliography source should have no page, got %d", *resp.SourceInfo.PageNumber)
	}

	calls := f.completer.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected a single completion call, got %d", len(calls))
	}
	prompt := calls[0].Prompt
	if !strings.Contains(prompt, "please answer the question: What diseases are discussed?") {
		t.Error("prompt missing question")
	}
	if !strings.Contains(prompt, "[1] Title: Convalescent plasma") {
		t.Error("prompt missing numbered context")
	}
	if strings.Contains(prompt, "No attachment") {
		t.Error("skipped record leaked into context")
	}
	if calls[0].Format != llm.FormatFreeText {
		t.Error("answers are free text")
	}
}

func TestQuery_PDFExplicitPageReference(t *testing.T) {
	f := newFixture(t, &llmtest.ScriptedCompleter{Responses: []string{"The sample size was 120 [1]."}})
	col := f.build(t, "Plasma PDFs", pdfBundle)

	if !col.IsPDF() {
		t.Fatal("expected PDF collection")
	}

	resp, err := f.engine.Query(context.Background(), col, "What is the sample size mentioned on page 3?", VariantDefault)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.SourceInfo == nil || resp.SourceInfo.PageNumber == nil {
		t.Fatal("expected page number in source info")
	}
	if got := *resp.SourceInfo.PageNumber; got != 2 {
		t.Errorf("page_number = %d, want 2", got)
	}
	if resp.SourceInfo.SourceFile != "/data/trial.pdf" {
		t.Errorf("SourceFile = %q", resp.SourceInfo.SourceFile)
	}
}

func TestQuery_PageReferenceOverridesTopChunk(t *testing.T) {
	f := newFixture(t, &llmtest.ScriptedCompleter{Responses: []string{"answer"}})
	col := f.build(t, "Plasma PDFs", pdfBundle)

	// Retrieval favours the sample size page (index 2); the explicit page wins.
	resp, err := f.engine.Query(context.Background(), col, "Sample size table on p.5?", VariantDefault)
	if err != nil {
		t.Fatal(err)
	}
	if resp.SourceInfo.PageNumber == nil || *resp.SourceInfo.PageNumber != 4 {
		t.Errorf("page_number = %v, want 4", resp.SourceInfo.PageNumber)
	}
	if !strings.Contains(resp.SourceInfo.Content, "Sample size = 120") {
		t.Errorf("content should come from the top chunk, got %q", resp.SourceInfo.Content)
	}
}

func TestQuery_PageReferenceIgnoredForBibliography(t *testing.T) {
	f := newFixture(t, &llmtest.ScriptedCompleter{Responses: []string{"answer"}})
	col := f.build(t, "Ebola Virus", bibliographyBundle)

	resp, err := f.engine.Query(context.Background(), col, "What does page 3 say about Ebola?", VariantDefault)
	if err != nil {
		t.Fatal(err)
	}
	if resp.SourceInfo.PageNumber != nil {
		t.Errorf("bibliography query should not get a page, got %d", *resp.SourceInfo.PageNumber)
	}
}

func TestQuery_NoMatches(t *testing.T) {
	f := newFixture(t, &llmtest.ScriptedCompleter{Responses: []string{"unused"}})
	col := &models.Collection{Name: "Empty", StoreKey: "missing", Kind: models.KindPDF}

	resp, err := f.engine.Query(context.Background(), col, "anything?", VariantDefault)
	if err != nil {
		t.Fatalf("empty result should not be an error: %v", err)
	}
	if resp.SourceInfo != nil {
		t.Error("expected nil source info")
	}
	if len(f.completer.Calls()) != 0 {
		t.Error("no completion should be issued without context")
	}
}

func TestQuery_Variants(t *testing.T) {
	tests := []struct {
		variant Variant
		marker  string
	}{
		{VariantDefault, "please state that clearly"},
		{VariantHighlight, "**asterisks**"},
		{VariantEvidenceBased, "use [?]"},
		{Variant("unknown"), "please state that clearly"},
	}

	for _, tt := range tests {
		t.Run(string(tt.variant), func(t *testing.T) {
			f := newFixture(t, &llmtest.ScriptedCompleter{Responses: []string{"ok"}})
			col := f.build(t, "Ebola Virus", bibliographyBundle)
			if _, err := f.engine.Query(context.Background(), col, "Ebola?", tt.variant); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(f.completer.Calls()[0].Prompt, tt.marker) {
				t.Errorf("prompt for %s missing %q", tt.variant, tt.marker)
			}
		})
	}
}

func TestAnswer_ErrorMessage(t *testing.T) {
	completer := &llmtest.ScriptedCompleter{
		Respond: func(string, llm.ResponseFormat) (string, error) {
			return "", errors.New("503 service unavailable")
		},
	}
	f := newFixture(t, completer)
	col := f.build(t, "Ebola Virus", bibliographyBundle)

	_, err := f.engine.Query(context.Background(), col, "Ebola?", VariantDefault)
	var svcErr *llm.UpstreamServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected UpstreamServiceError, got %v", err)
	}

	resp := f.engine.Answer(context.Background(), col, "Ebola?", VariantDefault)
	if resp.SourceInfo != nil {
		t.Error("failed query must not carry partial source info")
	}
	if !strings.HasPrefix(resp.AnswerText, "Sorry, the completion service") {
		t.Errorf("AnswerText = %q", resp.AnswerText)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&llm.UpstreamTimeoutError{Service: "completion"}, "timed out"},
		{&llm.UpstreamServiceError{Service: "embedding", Type: llm.ErrorRate}, "rate limited"},
		{&llm.UpstreamServiceError{Service: "completion", Type: llm.ErrorContext}, "too long"},
		{context.Canceled, "cancelled"},
		{errors.New("boom"), "could not be completed: boom"},
	}
	for _, tt := range tests {
		if got := ErrorMessage(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("ErrorMessage(%v) = %q, want substring %q", tt.err, got, tt.want)
		}
	}
}

func TestTopK(t *testing.T) {
	e := NewEngine(nil, nil, nil, logger.NewNoOpLogger())
	tests := []struct {
		name string
		col  models.Collection
		want int
	}{
		{"small bibliography uses every document", models.Collection{Kind: models.KindBibliography, DocumentCount: 4}, 4},
		{"bibliography at threshold", models.Collection{Kind: models.KindBibliography, DocumentCount: 17}, 17},
		{"large bibliography capped", models.Collection{Kind: models.KindBibliography, DocumentCount: 40}, 15},
		{"pdf fixed", models.Collection{Kind: models.KindPDF, DocumentCount: 40}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.TopK(&tt.col); got != tt.want {
				t.Errorf("TopK = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParsePageReference(t *testing.T) {
	tests := []struct {
		question string
		want     int
		ok       bool
	}{
		{"What is on page 3?", 2, true},
		{"see p.3 for details", 2, true},
		{"pg 12 results", 11, true},
		{"PAGE: 1", 0, true},
		{"pages 4-5", 3, true},
		{"p. 7", 6, true},
		{"page 0", 0, false},
		{"What is the sample size?", 0, false},
		{"group 3 outcomes", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, ok := ParsePageReference(tt.question)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParsePageReference(%q) = %d, %v; want %d, %v", tt.question, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFollowUps(t *testing.T) {
	completer := &llmtest.ScriptedCompleter{Responses: []string{
		"answer",
		"1. What was the plasma dosage\n2. How was viral load measured?\n\n3) Were side effects reported\n4. Extra question?",
	}}
	f := newFixture(t, completer)
	col := f.build(t, "Ebola Virus", bibliographyBundle)

	resp, err := f.engine.Query(context.Background(), col, "What treatment was used?", VariantDefault)
	if err != nil {
		t.Fatal(err)
	}
	questions, err := f.engine.FollowUps(context.Background(), col, "What treatment was used?", resp.AnswerText)
	if err != nil {
		t.Fatalf("FollowUps: %v", err)
	}

	want := []string{
		"What was the plasma dosage?",
		"How was viral load measured?",
		"Were side effects reported?",
	}
	if len(questions) != len(want) {
		t.Fatalf("got %d questions: %v", len(questions), questions)
	}
	for i := range want {
		if questions[i] != want[i] {
			t.Errorf("question %d = %q, want %q", i, questions[i], want[i])
		}
	}

	prompt := completer.Calls()[1].Prompt
	if !strings.Contains(prompt, "Study type: Ebola Virus") || !strings.Contains(prompt, "SURVIVAL_RATE") {
		t.Error("follow-up prompt missing study type details")
	}
}

func TestInferStudyType(t *testing.T) {
	tests := map[string]string{
		"Vaccine coverage 2023": "Vaccine Coverage",
		"Ebola Virus":           "Ebola Virus",
		"GeneXpert":             "Gene Xpert",
		"gene-xpert MTB":        "Gene Xpert",
		"Malaria":               "General",
	}
	for in, want := range tests {
		if got := InferStudyType(in).Name; got != want {
			t.Errorf("InferStudyType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseVariant(t *testing.T) {
	tests := map[string]Variant{
		"highlight":      VariantHighlight,
		"Evidence-Based": VariantEvidenceBased,
		"":               VariantDefault,
		"other":          VariantDefault,
	}
	for in, want := range tests {
		if got := ParseVariant(in); got != want {
			t.Errorf("ParseVariant(%q) = %s, want %s", in, got, want)
		}
	}
}
