package domain

import (
	"net"
	"regexp"
	"strings"
)

// Match is a raw candidate produced by the pattern recognizer, before
// scoring and filtering.
type Match struct {
	Type    IndicatorType
	Value   string
	Context string
}

const contextRadius = 50

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"'` + "`" + `]+`)

	ipv4Pattern = regexp.MustCompile(`\b(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])(?:\.(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])){3}\b`)

	// Best-effort IPv6: full form, compressed form, and leading "::".
	// Candidates are re-validated with net.ParseIP before they count.
	ipv6Pattern = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b|\b(?:[0-9a-fA-F]{1,4}:){1,7}:(?:[0-9a-fA-F]{1,4}(?::[0-9a-fA-F]{1,4}){0,6})?\b|::(?:[0-9a-fA-F]{1,4}(?::[0-9a-fA-F]{1,4}){0,7})?`)

	domainPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)

	// Recognized at exactly 32 (MD5), 40 (SHA-1), 64 (SHA-256) and
	// 128 (SHA-512) hex characters. Longest alternative first so a longer
	// digest never decomposes into shorter ones.
	hashPattern = regexp.MustCompile(`\b(?:[a-fA-F0-9]{128}|[a-fA-F0-9]{64}|[a-fA-F0-9]{40}|[a-fA-F0-9]{32})\b`)

	emailPattern = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)

	cvePattern    = regexp.MustCompile(`\bCVE-\d{4}-\d{4,7}\b`)
	ghsaPattern   = regexp.MustCompile(`\bGHSA(?:-[23456789cfghjmpqrvwx]{4}){3}\b`)
	attackPattern = regexp.MustCompile(`\bT\d{4}(?:\.\d{3})?\b`)
)

// ExtractMatches runs every type pattern over the text and returns all raw
// candidate matches paired with a context window. Pure function, no I/O.
//
// Domain extraction runs on a copy of the text with already-matched URLs
// blanked out, so a URL's host is not double counted as a standalone domain.
func ExtractMatches(text string) []Match {
	var matches []Match

	urlSpans := urlPattern.FindAllStringIndex(text, -1)
	for _, span := range urlSpans {
		matches = append(matches, newMatch(URL, text, span))
	}

	for _, span := range ipv4Pattern.FindAllStringIndex(text, -1) {
		matches = append(matches, newMatch(IPAddress, text, span))
	}
	for _, span := range ipv6Pattern.FindAllStringIndex(text, -1) {
		if net.ParseIP(text[span[0]:span[1]]) == nil {
			continue
		}
		matches = append(matches, newMatch(IPAddress, text, span))
	}

	masked := maskSpans(text, urlSpans)
	for _, span := range domainPattern.FindAllStringIndex(masked, -1) {
		matches = append(matches, newMatch(Domain, text, span))
	}

	for _, span := range hashPattern.FindAllStringIndex(text, -1) {
		matches = append(matches, newMatch(FileHash, text, span))
	}

	for _, span := range emailPattern.FindAllStringIndex(text, -1) {
		matches = append(matches, newMatch(Email, text, span))
	}

	// CVE, GHSA and ATT&CK technique IDs are folded into the hash bucket.
	// They are not digests; this mapping is kept for compatibility with the
	// data already in the wild and is a known wart.
	for _, p := range []*regexp.Regexp{cvePattern, ghsaPattern, attackPattern} {
		for _, span := range p.FindAllStringIndex(text, -1) {
			matches = append(matches, newMatch(FileHash, text, span))
		}
	}

	return matches
}

func newMatch(t IndicatorType, text string, span []int) Match {
	return Match{
		Type:    t,
		Value:   strings.TrimSpace(text[span[0]:span[1]]),
		Context: contextWindow(text, span[0], span[1]),
	}
}

// contextWindow returns up to contextRadius characters on each side of the
// matched span, for human review and keyword scoring.
func contextWindow(text string, start, end int) string {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextRadius
	if hi > len(text) {
		hi = len(text)
	}
	return strings.TrimSpace(text[lo:hi])
}

// maskSpans blanks out the given spans so later patterns cannot re-match
// inside them. Offsets are preserved.
func maskSpans(text string, spans [][]int) string {
	if len(spans) == 0 {
		return text
	}
	b := []byte(text)
	for _, span := range spans {
		for i := span[0]; i < span[1]; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}
