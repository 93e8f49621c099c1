package documents

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

// Page chrome that never carries article text.
var removedTags = []string{"nav", "script", "style", "noscript", "iframe", "header", "footer", "form"}

func newHTMLConverter() *converter.Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
	for _, tag := range removedTags {
		conv.Register.TagType(tag, converter.TagTypeRemove, converter.PriorityStandard)
	}
	return conv
}

// PreprocessHTML converts an HTML page to markdown, keeping headings and
// body text and dropping navigation, scripts and styles.
func PreprocessHTML(data []byte) (string, error) {
	markdown, err := newHTMLConverter().ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}
