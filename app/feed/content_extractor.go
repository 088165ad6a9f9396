package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

// ContentExtractor pulls the readable article text out of a full HTML page.
type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// Run returns the extracted plain text of the page.
func (e *ContentExtractor) Run(data []byte, pageURL string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	parsedURL, _ := url.Parse(pageURL)

	article, err := readability.FromReader(bytes.NewReader(data), parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(text))

	return text, nil
}
