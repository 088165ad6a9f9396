package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText strips markup and collapses whitespace. Text without markup is
// returned normalized as well.
func PlainText(markup string) string {
	if !strings.ContainsAny(markup, "<&") {
		return strings.Join(strings.Fields(markup), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.Join(strings.Fields(markup), " ")
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}
