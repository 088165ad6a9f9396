package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Parser reads RSS, Atom and JSON feeds.
type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    normalizeLanguage(feed.Language),
	}
	if feed.Image != nil {
		metadata.ImageURL = feed.Image.URL
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, p.normalizeItem(item))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		GUID:        cmp.Or(item.GUID, item.Link),
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Description: item.Description,
		Content:     item.Content,
		Categories:  item.Categories,
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = *item.UpdatedParsed
	}

	normalized.Authors = p.extractAuthors(item)

	if item.Image != nil && item.Image.URL != "" {
		normalized.ImageURL = item.Image.URL
	} else {
		for _, enclosure := range item.Enclosures {
			if enclosure != nil && strings.HasPrefix(enclosure.Type, "image/") {
				normalized.ImageURL = enclosure.URL
				break
			}
		}
	}

	return normalized
}

func (p *Parser) extractAuthors(item *gofeed.Item) []string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if name := formatAuthor(author.Name, author.Email); name != "" {
					authors = append(authors, name)
				}
			}
		}
	} else if item.Author != nil {
		if name := formatAuthor(item.Author.Name, item.Author.Email); name != "" {
			authors = append(authors, name)
		}
	}

	return authors
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s (%s)", email, name)
	case name != "":
		return name
	default:
		return email
	}
}

// normalizeLanguage turns "en-US" or "nl_NL" into "en" / "nl".
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
