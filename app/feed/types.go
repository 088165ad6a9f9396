package feed

import (
	"cmp"
	"time"
)

type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

type Item struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	PublishedAt time.Time
	Authors     []string
	Categories  []string
	ImageURL    string
}

// Body returns the item text with markup removed, preferring full content
// over the description.
func (i Item) Body() string {
	return PlainText(cmp.Or(i.Content, i.Description))
}
