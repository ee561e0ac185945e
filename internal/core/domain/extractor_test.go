package domain

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func extractedValues(t *testing.T, text string, typ IndicatorType) []string {
	t.Helper()
	var out []string
	for _, ind := range ExtractIndicators(text, time.Now()) {
		if ind.Type == typ {
			out = append(out, ind.Value)
		}
	}
	return out
}

func TestExtractMatchesIPv4(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"Public address", "Beaconing to 203.0.113.9 observed", []string{"203.0.113.9"}},
		{"Octet out of range", "Version 999.1.1.300 released", nil},
		{"Embedded in sentence", "Traffic from 45.76.33.21.", []string{"45.76.33.21"}},
		{"Two addresses", "Hosts 203.0.113.9 and 198.51.100.4", []string{"203.0.113.9", "198.51.100.4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range ExtractMatches(tt.text) {
				if m.Type == IPAddress {
					got = append(got, m.Value)
				}
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractMatches(%q) ips = %v, want %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestExtractMatchesIPv6(t *testing.T) {
	text := "C2 endpoint at 2001:db8:85a3::8a2e:370:7334 confirmed"
	values := extractedValues(t, text, IPAddress)
	if !reflect.DeepEqual(values, []string{"2001:db8:85a3::8a2e:370:7334"}) {
		t.Errorf("ipv6 extraction = %v", values)
	}
}

func TestExtractHashLengths(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		matches bool
	}{
		{"Below MD5 length", 31, false},
		{"MD5", 32, true},
		{"Between MD5 and SHA-1", 33, false},
		{"SHA-1", 40, true},
		{"SHA-256", 64, true},
		{"SHA-512", 128, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "sample " + strings.Repeat("a", tt.length) + " end"
			values := extractedValues(t, text, FileHash)

			if tt.matches {
				if len(values) != 1 || len(values[0]) != tt.length {
					t.Errorf("hash of length %d: got %v", tt.length, values)
				}
			} else if len(values) != 0 {
				t.Errorf("hash of length %d should not match, got %v", tt.length, values)
			}
		})
	}
}

func TestSHA256NotDecomposed(t *testing.T) {
	digest := strings.Repeat("ab", 32) // 64 hex chars
	values := extractedValues(t, "dropper "+digest+" seen", FileHash)
	if len(values) != 1 || values[0] != digest {
		t.Errorf("expected single 64-char digest, got %v", values)
	}
}

func TestURLHostNotDoubleCountedAsDomain(t *testing.T) {
	text := "Payload hosted at https://cdn.badhost.io/stage2.bin for download"

	indicators := ExtractIndicators(text, time.Now())
	var urls, domains int
	for _, ind := range indicators {
		switch ind.Type {
		case URL:
			urls++
		case Domain:
			domains++
		}
	}

	if urls != 1 {
		t.Errorf("expected 1 url, got %d", urls)
	}
	if domains != 0 {
		t.Errorf("url host leaked into domain extraction: %d domains", domains)
	}
}

func TestStandaloneDomainStillExtracted(t *testing.T) {
	text := "Resolved via cdn.badhost.io plus https://other.evil.io/x"

	domains := extractedValues(t, text, Domain)
	if !reflect.DeepEqual(domains, []string{"cdn.badhost.io"}) {
		t.Errorf("domains = %v, want [cdn.badhost.io]", domains)
	}
}

func TestVulnerabilityIDsLandInHashBucket(t *testing.T) {
	text := "Exploitation of CVE-2024-21412 via T1566.001 reported"

	values := extractedValues(t, text, FileHash)
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	if !set["CVE-2024-21412"] || !set["T1566.001"] {
		t.Errorf("expected CVE and technique IDs in hash bucket, got %v", values)
	}
}

func TestExtractionIsIdempotent(t *testing.T) {
	text := "Lazarus malware from 203.0.113.9 via https://drop.evil.tk/payload and " +
		strings.Repeat("c3", 16) + " contact ops@badcorp.net"
	now := time.Now()

	first := ExtractIndicators(text, now)
	second := ExtractIndicators(text, now)

	if len(first) == 0 {
		t.Fatal("expected indicators from sample text")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not idempotent:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestContextWindowBounds(t *testing.T) {
	text := strings.Repeat("x", 200) + " 203.0.113.9 " + strings.Repeat("y", 200)

	matches := ExtractMatches(text)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	ctx := matches[0].Context
	if len(ctx) > 2*contextRadius+len("203.0.113.9")+2 {
		t.Errorf("context window too wide: %d chars", len(ctx))
	}
	if !strings.Contains(ctx, "203.0.113.9") {
		t.Errorf("context does not contain the match: %q", ctx)
	}
}
