package domain

import "strings"

// tagRule maps a coarse tag to the keywords that fire it. Rules are kept in
// a slice so derived tag order is stable across runs.
type tagRule struct {
	Tag      string
	Keywords []string
}

var tagRules = []tagRule{
	// Threat-type tags
	{"APT", []string{"apt", "advanced persistent", "nation-state", "state-sponsored", "espionage"}},
	{"Ransomware", []string{"ransomware", "ransom", "lockbit", "conti", "blackcat", "encryptor"}},
	{"Malware", []string{"malware", "trojan", "backdoor", "stealer", "loader", "botnet", "rootkit"}},
	{"Phishing", []string{"phishing", "credential harvesting", "spoofed", "smishing", "spearphishing"}},
	{"Vulnerability", []string{"vulnerability", "cve-", "zero-day", "exploit", "unpatched"}},
	{"Supply Chain", []string{"supply chain", "typosquat", "dependency confusion", "malicious package"}},

	// Sector tags
	{"Healthcare", []string{"hospital", "healthcare", "medical", "patient"}},
	{"Finance", []string{"bank", "financial", "finance", "fintech"}},
	{"Government", []string{"government", "federal", "ministry", "municipal"}},
	{"Energy", []string{"energy", "power grid", "utility", "pipeline"}},
	{"Education", []string{"university", "school district", "education sector"}},

	// Platform tags
	{"Windows", []string{"windows", "win32", "powershell"}},
	{"Linux", []string{"linux", "systemd"}},
	{"macOS", []string{"macos", "os x"}},
	{"Android", []string{"android"}},
	{"Cloud", []string{"aws", "azure", "kubernetes", "cloud environment"}},
}

// categoryOrder decides which threat-type tag wins the report category when
// several fire. First hit wins.
var categoryOrder = []string{"Ransomware", "APT", "Phishing", "Supply Chain", "Vulnerability", "Malware"}

// DeriveTags returns the coarse tags whose keywords appear case-insensitively
// in the report's title or description.
func DeriveTags(title, description string) []string {
	haystack := strings.ToLower(title + " " + description)

	var tags []string
	for _, rule := range tagRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(haystack, kw) {
				tags = append(tags, rule.Tag)
				break
			}
		}
	}
	return tags
}

// DeriveCategory picks a threat-type category from the derived tags,
// defaulting to Unknown.
func DeriveCategory(tags []string) string {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	for _, c := range categoryOrder {
		if _, ok := set[c]; ok {
			return c
		}
	}
	return "Unknown"
}

var criticalKeywords = []string{"zero-day", "actively exploited", "critical vulnerability", "mass exploitation", "wiper"}

var highKeywords = []string{"ransomware", "apt", "data breach", "supply chain", "remote code execution"}

// DeriveSeverity applies a coarse keyword heuristic over title+description.
// Reports stay at medium unless a stronger signal appears; enrichment may
// override later.
func DeriveSeverity(title, description string) Severity {
	haystack := strings.ToLower(title + " " + description)
	for _, kw := range criticalKeywords {
		if strings.Contains(haystack, kw) {
			return SeverityCritical
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(haystack, kw) {
			return SeverityHigh
		}
	}
	return SeverityMedium
}
