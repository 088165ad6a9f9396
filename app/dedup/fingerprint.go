package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math/bits"
	"net/url"
	"sort"
	"strings"
	"unicode"
)

// Fingerprint identifies the content of a scraped item. ContentHash catches
// strict duplicates, SimHash catches near-duplicates.
type Fingerprint struct {
	ContentHash string
	SimHash     uint64
	HasSimHash  bool
}

// Compute fingerprints the normalized title and body of an item.
func Compute(title, body string) Fingerprint {
	text := NormalizeText(title + " " + body)
	sum := sha256.Sum256([]byte(text))

	fp := Fingerprint{ContentHash: hex.EncodeToString(sum[:16])}
	fp.SimHash, fp.HasSimHash = SimHash64(text)
	return fp
}

// Hamming returns the number of differing bits between two signatures.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// NormalizeText lowercases, drops control characters and collapses whitespace.
func NormalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

func tokenize(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// SimHash64 computes a 64-bit simhash over word tokens. It reports false for
// text without any tokens.
func SimHash64(text string) (uint64, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, false
	}

	var weights [64]int
	for _, token := range tokens {
		h := hashToken(token)
		for bit := 0; bit < 64; bit++ {
			if h&(uint64(1)<<bit) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}

	var result uint64
	for bit := 0; bit < 64; bit++ {
		if weights[bit] > 0 {
			result |= uint64(1) << bit
		}
	}
	return result, true
}

func hashToken(token string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(token))
	return hasher.Sum64()
}

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
}

// CanonicalURL lowercases scheme and host, drops default ports, fragments,
// trailing slashes and tracking parameters, and sorts the query. Unparseable
// input is returned trimmed.
func CanonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return trimmed
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			host += ":" + port
		}
	}
	parsed.Host = host
	parsed.Fragment = ""
	parsed.RawFragment = ""

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	parsed.Path = path
	parsed.RawPath = ""

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	for _, values := range q {
		sort.Strings(values)
	}
	// Encode sorts by key.
	parsed.RawQuery = q.Encode()

	return parsed.String()
}

// SourceFingerprint identifies the origin of an item by its canonical URL.
func SourceFingerprint(rawURL string) string {
	sum := sha256.Sum256([]byte(CanonicalURL(rawURL)))
	return hex.EncodeToString(sum[:16])
}
