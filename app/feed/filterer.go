package feed

import (
	"fmt"
	"strings"
)

// DefaultPaywallMarkers are phrases that show up in teasers of paid articles.
var DefaultPaywallMarkers = []string{
	"subscribe to continue",
	"subscribe to read",
	"subscribers only",
	"for subscribers",
	"already a subscriber",
	"sign in to continue reading",
	"this article is for premium",
	"premium content",
	"abone ol",
	"abonelere özel",
	"alleen voor abonnees",
	"lees verder met",
	"word abonnee",
}

// DefaultMinBodyLength is the shortest body (in characters) that is not treated as a teaser.
const DefaultMinBodyLength = 200

// Filterer flags items that are likely paywalled before they cost AI calls.
type Filterer struct {
	markers   []string
	minLength int
}

func NewFilterer(markers []string, minLength int) *Filterer {
	if markers == nil {
		markers = DefaultPaywallMarkers
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return &Filterer{markers: lowered, minLength: minLength}
}

func (f *Filterer) Check(title, body string) (bool, string) {
	if n := len([]rune(body)); n < f.minLength {
		return true, fmt.Sprintf("body too short for a full article (%d < %d chars)", n, f.minLength)
	}

	haystack := strings.ToLower(title + "\n" + body)
	for _, marker := range f.markers {
		if strings.Contains(haystack, marker) {
			return true, fmt.Sprintf("contains paywall marker '%s'", marker)
		}
	}

	return false, ""
}
