// Package segment turns source records into sentence-window chunks.
//
// Text is split into sentences, sentences are packed into groups of at most
// ChunkSize characters (with ChunkOverlap characters of trailing sentences
// carried into the next group), and each group is embedded together with
// WindowSize neighbouring groups on either side. The group itself is kept as
// the citable core text.
package segment

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/models"
)

const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 20
	DefaultWindowSize   = 3
)

// Segmenter holds the tunables for sentence-window segmentation.
type Segmenter struct {
	ChunkSize    int
	ChunkOverlap int
	WindowSize   int
	log          logger.Logger
}

// New returns a Segmenter; non-positive values fall back to the defaults.
func New(chunkSize, chunkOverlap, windowSize int, log logger.Logger) *Segmenter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	if windowSize < 0 {
		windowSize = DefaultWindowSize
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Segmenter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		WindowSize:   windowSize,
		log:          log,
	}
}

// Segment converts records into chunks in record order. Records that are not
// segmentable are skipped with a warning.
func (s *Segmenter) Segment(records []models.SourceRecord, kind models.CollectionKind) []models.Chunk {
	chunks := make([]models.Chunk, 0)
	seen := make(map[string]bool)

	for _, rec := range records {
		// Records of the other shape in a mixed bundle carry no usable text for this kind.
		rec.Kind = kind
		if !rec.Segmentable() {
			s.log.Warn("Skipping record %q (%s): no segmentable text", rec.Title, rec.ID)
			continue
		}

		id := rec.ID
		for n := 1; seen[id]; n++ {
			id = fmt.Sprintf("%s~%d", rec.ID, n)
		}
		seen[id] = true
		if id != rec.ID {
			s.log.Warn("Duplicate record id %q, using %q", rec.ID, id)
			rec.ID = id
		}

		switch kind {
		case models.KindPDF:
			chunks = append(chunks, s.segmentPDF(rec)...)
		default:
			chunks = append(chunks, s.segmentBibliography(rec)...)
		}
	}

	return chunks
}

func (s *Segmenter) segmentBibliography(rec models.SourceRecord) []models.Chunk {
	authors := strings.Join(rec.Authors, ", ")
	text := fmt.Sprintf("Title: %s\nAbstract: %s\nAuthors: %s\nFull text: %s",
		rec.Title, rec.Abstract, authors, rec.FullText)

	meta := models.ChunkMetadata{
		RecordID:   rec.ID,
		Title:      rec.Title,
		Authors:    authors,
		YearOrDate: rec.YearOrDate,
		DOI:        rec.DOI,
	}
	return s.window(rec.ID, text, meta)
}

func (s *Segmenter) segmentPDF(rec models.SourceRecord) []models.Chunk {
	authors := strings.Join(rec.Authors, ", ")
	var chunks []models.Chunk

	for _, page := range bundle.SortedPages(rec) {
		content := rec.Pages[page]
		if strings.TrimSpace(content) == "" {
			continue
		}
		text := fmt.Sprintf("Title: %s\nPage %d Content: %s\nAuthors: %s",
			rec.Title, page+1, content, authors)

		pageNumber := page
		meta := models.ChunkMetadata{
			RecordID:   rec.ID,
			Title:      rec.Title,
			Authors:    authors,
			YearOrDate: rec.YearOrDate,
			SourceFile: rec.SourceFile,
			PageNumber: &pageNumber,
			TotalPages: rec.PageCount,
		}
		chunks = append(chunks, s.window(rec.ID+":p"+strconv.Itoa(page), text, meta)...)
	}
	return chunks
}

// window builds one chunk per sentence group with its surrounding context.
func (s *Segmenter) window(prefix, text string, meta models.ChunkMetadata) []models.Chunk {
	groups := s.Groups(text)
	chunks := make([]models.Chunk, 0, len(groups))
	for i, core := range groups {
		lo := max(0, i-s.WindowSize)
		hi := min(len(groups), i+s.WindowSize+1)
		chunks = append(chunks, models.Chunk{
			ID:       prefix + "#" + strconv.Itoa(i),
			Text:     strings.Join(groups[lo:hi], " "),
			CoreText: core,
			Metadata: meta,
		})
	}
	return chunks
}

// Groups packs the sentences of text into groups of at most ChunkSize
// characters, carrying up to ChunkOverlap characters of trailing sentences
// into the following group.
func (s *Segmenter) Groups(text string) []string {
	var sentences []string
	for _, sent := range SplitSentences(text) {
		sentences = append(sentences, hardSplit(sent, s.ChunkSize)...)
	}
	if len(sentences) == 0 {
		return nil
	}

	var groups []string
	var current []string
	size := 0
	fresh := 0 // sentences in current that were not carried over

	flush := func() {
		if fresh == 0 {
			return
		}
		groups = append(groups, strings.Join(current, " "))

		// carry trailing sentences that fit into the overlap budget
		var carry []string
		carried := 0
		for i := len(current) - 1; i >= 0; i-- {
			n := utf8.RuneCountInString(current[i])
			if carried+n > s.ChunkOverlap {
				break
			}
			carry = append([]string{current[i]}, carry...)
			carried += n + 1
		}
		current = carry
		size = 0
		for _, c := range current {
			size += utf8.RuneCountInString(c) + 1
		}
		fresh = 0
	}

	for _, sent := range sentences {
		n := utf8.RuneCountInString(sent)
		if size+n > s.ChunkSize && len(current) > 0 {
			flush()
			// drop the carried overlap if it leaves no room for this sentence
			for len(current) > 0 && size+n > s.ChunkSize {
				size -= utf8.RuneCountInString(current[0]) + 1
				current = current[1:]
			}
		}
		current = append(current, sent)
		size += n + 1
		fresh++
	}
	flush()

	return groups
}

// SplitSentences splits text at sentence terminators followed by whitespace
// and at line breaks. Empty sentences are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)

	emit := func() {
		if sent := strings.TrimSpace(b.String()); sent != "" {
			sentences = append(sentences, sent)
		}
		b.Reset()
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' || r == '\r' {
			emit()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// absorb runs like "?!" or "..."
			for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				i++
				b.WriteRune(runes[i])
			}
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				emit()
			}
		}
	}
	emit()

	return sentences
}

// hardSplit cuts a single over-long sentence into pieces of at most size runes.
func hardSplit(sentence string, size int) []string {
	runes := []rune(sentence)
	if len(runes) <= size {
		return []string{sentence}
	}
	var parts []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
