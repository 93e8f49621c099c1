// Package llmtest provides deterministic Completer and Embedder fakes for
// exercising the pipeline without network access.
package llmtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/Epistemic-Technology/study-rag/internal/llm"
)

// Dimensions is the vector size produced by HashEmbedder.
const Dimensions = 256

// HashEmbedder embeds text as a normalised bag of hashed lowercase words, so
// texts sharing words score as similar.
type HashEmbedder struct {
	// Err, when set, is returned from every call.
	Err error

	calls atomic.Int64
	texts atomic.Int64
}

// Calls is the number of EmbedBatch invocations (Embed counts as one).
func (e *HashEmbedder) Calls() int { return int(e.calls.Load()) }

// Texts is the total number of texts embedded.
func (e *HashEmbedder) Texts() int { return int(e.texts.Load()) }

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.texts.Add(int64(len(texts)))

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

// Vector returns the embedding HashEmbedder produces for text.
func Vector(text string) []float32 {
	v := make([]float32, Dimensions)
	// Bias component keeps empty text from producing a zero vector
	v[0] = 0.01
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		v[1+int(h.Sum32()%(Dimensions-1))]++
	}

	var norm float64
	for _, f := range v {
		norm += float64(f * f)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Completion is a recorded Complete call.
type Completion struct {
	Prompt string
	Format llm.ResponseFormat
}

// ScriptedCompleter answers prompts with Respond, or with Responses in order.
type ScriptedCompleter struct {
	// Respond, when set, computes the reply for each prompt.
	Respond func(prompt string, format llm.ResponseFormat) (string, error)
	// Responses are returned in order when Respond is nil; the last one repeats.
	Responses []string

	mu    sync.Mutex
	calls []Completion
}

// ErrNoResponse is returned when a ScriptedCompleter has nothing to say.
var ErrNoResponse = errors.New("llmtest: no scripted response")

func (c *ScriptedCompleter) Complete(ctx context.Context, prompt string, format llm.ResponseFormat) (string, error) {
	c.mu.Lock()
	n := len(c.calls)
	c.calls = append(c.calls, Completion{Prompt: prompt, Format: format})
	c.mu.Unlock()

	if c.Respond != nil {
		return c.Respond(prompt, format)
	}
	if len(c.Responses) == 0 {
		return "", ErrNoResponse
	}
	return c.Responses[min(n, len(c.Responses)-1)], nil
}

// Calls returns a copy of the recorded calls.
func (c *ScriptedCompleter) Calls() []Completion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Completion(nil), c.calls...)
}

var (
	_ llm.Completer = (*ScriptedCompleter)(nil)
	_ llm.Embedder  = (*HashEmbedder)(nil)
)
