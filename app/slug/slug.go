package slug

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest slug Make produces, unless the first word alone is longer.
const MaxLength = 80

const fallback = "article"

var ErrExhausted = errors.New("slug candidates exhausted")

// Letters that do not decompose into base letter + combining mark.
var transliterations = strings.NewReplacer(
	"ı", "i", "İ", "i",
	"ß", "ss",
	"æ", "ae", "Æ", "ae",
	"ø", "o", "Ø", "o",
	"đ", "d", "Đ", "d",
	"ł", "l", "Ł", "l",
	"œ", "oe", "Œ", "oe",
	"þ", "th", "Þ", "th",
)

// Make derives a URL slug from a title. It lowercases, transliterates
// locale-specific letters, strips diacritics, joins words with single hyphens
// and trims to MaxLength on a word boundary.
func Make(title string) string {
	s := transliterations.Replace(title)
	s = strings.ToLower(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	var words []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if r == '\'' || r == '’' {
			// apostrophes join: "don't" -> "dont"
			continue
		}
		flush()
	}
	flush()

	if len(words) == 0 {
		return fallback
	}
	return truncate(words, MaxLength)
}

func truncate(words []string, max int) string {
	out := words[0]
	for _, w := range words[1:] {
		if len(out)+1+len(w) > max {
			break
		}
		out += "-" + w
	}
	return out
}

// Unique returns base or the first base-N (N = 1..maxAttempts) that exists
// reports as free.
func Unique(base string, exists func(candidate string) (bool, error), maxAttempts int) (string, error) {
	candidate := base
	for i := 0; i <= maxAttempts; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrExhausted, base, maxAttempts)
}
