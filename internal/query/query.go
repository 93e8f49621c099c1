// Package query answers free-text questions against an indexed study.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Epistemic-Technology/study-rag/internal/llm"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/vectorstore"
	"github.com/Epistemic-Technology/study-rag/models"
)

const (
	// Bibliographies with at most this many documents put every document in context.
	DefaultSmallBibliography = 17
	DefaultBibliographyCap   = 15
	DefaultPDFTopK           = 5

	maxFollowUps = 3
)

// NoMatchesAnswer is returned when retrieval finds nothing to answer from.
const NoMatchesAnswer = "No relevant passages were found in this study for the question."

var pageReference = regexp.MustCompile(`(?i)\b(?:pages?|pg|p)\s*[.:]?\s*(\d+)`)

// Engine retrieves context from the vector store and asks the completion
// service for a cited answer.
type Engine struct {
	store     vectorstore.Store
	embedder  llm.Embedder
	completer llm.Completer
	log       logger.Logger

	SmallBibliography int
	BibliographyCap   int
	PDFTopK           int
}

func NewEngine(store vectorstore.Store, embedder llm.Embedder, completer llm.Completer, log logger.Logger) *Engine {
	return &Engine{
		store:             store,
		embedder:          embedder,
		completer:         completer,
		log:               log.With("query"),
		SmallBibliography: DefaultSmallBibliography,
		BibliographyCap:   DefaultBibliographyCap,
		PDFTopK:           DefaultPDFTopK,
	}
}

// TopK is the number of chunks retrieved for col.
func (e *Engine) TopK(col *models.Collection) int {
	if col.IsPDF() {
		return e.PDFTopK
	}
	if col.DocumentCount <= e.SmallBibliography {
		return col.DocumentCount
	}
	return e.BibliographyCap
}

// Retrieve returns the TopK chunks most similar to question, best first.
func (e *Engine) Retrieve(ctx context.Context, col *models.Collection, question string) ([]models.ScoredChunk, error) {
	vector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, llm.ClassifyError("embedding", err)
	}
	matches, err := e.store.Query(ctx, col.StoreKey, vector, e.TopK(col))
	if err != nil {
		return nil, llm.ClassifyError("vector-store", err)
	}
	return matches, nil
}

// Query answers question from col using the prompt variant. A query that
// retrieves nothing is not an error: the response has no source info.
func (e *Engine) Query(ctx context.Context, col *models.Collection, question string, variant Variant) (*models.QueryResponse, error) {
	e.log.Info("Query on %q (%s, top_k=%d): %s", col.Name, variant, e.TopK(col), question)

	matches, err := e.Retrieve(ctx, col, question)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		e.log.Info("No chunks matched in %q", col.Name)
		return &models.QueryResponse{AnswerText: NoMatchesAnswer}, nil
	}

	prompt := AnswerPrompt(variant, BuildContext(matches), question)
	answer, err := e.completer.Complete(ctx, prompt, llm.FormatFreeText)
	if err != nil {
		return nil, llm.ClassifyError("completion", err)
	}

	return &models.QueryResponse{
		AnswerText: strings.TrimSpace(answer),
		SourceInfo: sourceInfo(col, matches[0], question),
	}, nil
}

// Answer is Query for user-facing surfaces: failures become a readable
// message in AnswerText instead of an error.
func (e *Engine) Answer(ctx context.Context, col *models.Collection, question string, variant Variant) *models.QueryResponse {
	resp, err := e.Query(ctx, col, question, variant)
	if err != nil {
		e.log.Error("Query on %q failed: %v", col.Name, err)
		return &models.QueryResponse{AnswerText: ErrorMessage(err)}
	}
	return resp
}

// ErrorMessage renders err as a short sentence suitable for end users.
func ErrorMessage(err error) string {
	var timeoutErr *llm.UpstreamTimeoutError
	var svcErr *llm.UpstreamServiceError
	switch {
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("Sorry, the %s service timed out. Please try again.", timeoutErr.Service)
	case errors.As(err, &svcErr):
		switch svcErr.Type {
		case llm.ErrorRate, llm.ErrorQuota:
			return fmt.Sprintf("Sorry, the %s service is rate limited right now. Please try again later.", svcErr.Service)
		case llm.ErrorContext:
			return "Sorry, the question and its context were too long for the model. Please ask a narrower question."
		default:
			return fmt.Sprintf("Sorry, the %s service failed to answer: %v", svcErr.Service, svcErr.Err)
		}
	case errors.Is(err, context.Canceled):
		return "The query was cancelled."
	default:
		return "Sorry, the query could not be completed: " + err.Error()
	}
}

// FollowUps suggests up to three follow-up questions for an answered query.
func (e *Engine) FollowUps(ctx context.Context, col *models.Collection, question, answer string) ([]string, error) {
	matches, err := e.Retrieve(ctx, col, question)
	if err != nil {
		return nil, err
	}

	studyType := InferStudyType(col.Name)
	prompt := FollowUpPrompt(BuildContext(matches), question, answer, studyType)
	text, err := e.completer.Complete(ctx, prompt, llm.FormatFreeText)
	if err != nil {
		return nil, llm.ClassifyError("completion", err)
	}

	questions := CleanFollowUps(text)
	e.log.Debug("Generated %d follow-up questions for %q (%s)", len(questions), col.Name, studyType.Name)
	return questions, nil
}

var listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

// CleanFollowUps strips list numbering, ensures every question ends with a
// question mark and keeps at most three.
func CleanFollowUps(text string) []string {
	questions := make([]string, 0, maxFollowUps)
	for _, line := range strings.Split(text, "\n") {
		q := strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		q = strings.Trim(q, "*")
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if !strings.HasSuffix(q, "?") {
			q += "?"
		}
		questions = append(questions, q)
		if len(questions) == maxFollowUps {
			break
		}
	}
	return questions
}

// BuildContext numbers matches in rank order for citation.
func BuildContext(matches []models.ScoredChunk) string {
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] Title: %s", i+1, m.Metadata.Title)
		if m.Metadata.PageNumber != nil {
			fmt.Fprintf(&b, " (page %d)", *m.Metadata.PageNumber+1)
		}
		b.WriteString("\n")
		b.WriteString(m.Text)
	}
	return b.String()
}

// ParsePageReference finds an explicit page mention such as "page 3", "p.3"
// or "pg 3" and returns the 0-based page index.
func ParsePageReference(question string) (int, bool) {
	match := pageReference.FindStringSubmatch(question)
	if match == nil {
		return 0, false
	}
	page, err := strconv.Atoi(match[1])
	if err != nil || page < 1 {
		return 0, false
	}
	return page - 1, true
}

func sourceInfo(col *models.Collection, top models.ScoredChunk, question string) *models.SourceInfo {
	info := &models.SourceInfo{
		SourceFile: top.Metadata.SourceFile,
		Title:      top.Metadata.Title,
		Authors:    top.Metadata.Authors,
		Content:    top.CoreText,
	}
	if top.Metadata.PageNumber != nil {
		page := *top.Metadata.PageNumber
		info.PageNumber = &page
	}
	if col.IsPDF() {
		if page, ok := ParsePageReference(question); ok {
			info.PageNumber = &page
		}
	}
	return info
}
