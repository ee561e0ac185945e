package domain

import (
	"net"
	"sort"
	"strings"
	"time"
)

const (
	baseConfidence = 0.7
	minConfidence  = 0.1
	maxConfidence  = 1.0
)

// threatKeywords raise confidence when found in the context window.
// Each distinct keyword present adds 0.1.
var threatKeywords = []string{
	"malicious", "threat", "malware", "suspicious", "attack",
	"compromise", "phishing", "ransomware", "trojan", "backdoor",
	"c2", "command", "control", "botnet", "exploit",
	"vulnerability", "breach",
}

var suspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf", ".onion"}

var suspiciousURLKeywords = []string{"download", "payload", "malware", "exploit"}

// excludedDomains are common placeholder or infrastructure domains that are
// never useful as indicators.
var excludedDomains = map[string]struct{}{
	"localhost":     {},
	"example.com":   {},
	"example.org":   {},
	"example.net":   {},
	"google.com":    {},
	"microsoft.com": {},
}

// ScoreMatch assigns a confidence to a raw match based on context keywords
// and type-specific heuristics. Pure function.
func ScoreMatch(m Match) float64 {
	confidence := baseConfidence

	ctx := strings.ToLower(m.Context)
	for _, kw := range threatKeywords {
		if strings.Contains(ctx, kw) {
			confidence += 0.1
		}
	}

	switch m.Type {
	case IPAddress:
		if isReservedIP(m.Value) {
			confidence -= 0.3
		}
	case URL:
		if hasSuspiciousURLTrait(m.Value) {
			confidence += 0.2
		}
	case FileHash:
		// Hashes in security text are inherently higher signal.
		confidence += 0.2
	}

	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	if confidence < minConfidence {
		confidence = minConfidence
	}
	return confidence
}

// RejectMatch reports whether a candidate should be discarded outright.
// Applied after scoring, before storage.
func RejectMatch(m Match) bool {
	value := m.Value

	switch m.Type {
	case IPAddress:
		return isReservedIP(value)

	case Domain:
		lower := strings.ToLower(value)
		if _, excluded := excludedDomains[lower]; excluded {
			return true
		}
		if !strings.Contains(lower, ".") || strings.HasSuffix(lower, ".local") {
			return true
		}
		// A dotted quad that slipped through the domain pattern is an IP,
		// not a domain.
		if ip := net.ParseIP(lower); ip != nil {
			return true
		}
		return false

	case URL:
		return !strings.HasPrefix(value, "http") || len(value) <= 10

	case FileHash:
		// CVE, GHSA and ATT&CK IDs live in this bucket and are shorter than
		// any digest; the length filter only applies to actual hex hashes.
		if cvePattern.MatchString(value) || ghsaPattern.MatchString(value) || attackPattern.MatchString(value) {
			return false
		}
		return len(value) < 32

	case Email:
		return !strings.Contains(value, "@") || !strings.Contains(value, ".")
	}

	return false
}

// ScoreAndFilter turns raw matches into scored indicators: rejects junk,
// collapses duplicates by (type, normalized value) keeping the highest
// confidence, and sorts descending by confidence. The tie-break on type and
// value keeps extraction idempotent for identical input.
func ScoreAndFilter(matches []Match, now time.Time) []Indicator {
	best := make(map[string]Indicator)

	for _, m := range matches {
		if RejectMatch(m) {
			continue
		}

		ind := Indicator{
			Type:       m.Type,
			Value:      m.Value,
			Context:    m.Context,
			Confidence: ScoreMatch(m),
			FirstSeen:  now,
		}

		key := ind.Key()
		if existing, ok := best[key]; !ok || ind.Confidence > existing.Confidence {
			best[key] = ind
		}
	}

	out := make([]Indicator, 0, len(best))
	for _, ind := range best {
		out = append(out, ind)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})

	return out
}

// ExtractIndicators is the full recognizer + scorer pass over a text blob.
func ExtractIndicators(text string, now time.Time) []Indicator {
	return ScoreAndFilter(ExtractMatches(text), now)
}

// isReservedIP reports whether the address falls in a private, reserved,
// loopback, broadcast, link-local or multicast range.
func isReservedIP(value string) bool {
	ip := net.ParseIP(value)
	if ip == nil {
		return false
	}
	if ip.Equal(net.IPv4bcast) {
		return true
	}
	return ip.IsUnspecified() ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast()
}

func hasSuspiciousURLTrait(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, tld := range suspiciousTLDs {
		if strings.Contains(lower, tld) {
			return true
		}
	}
	for _, kw := range suspiciousURLKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
