package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// similarityThreshold is the keyword-overlap ratio above which a report
	// joins an existing cluster.
	similarityThreshold = 0.3

	// minCampaignSize discards singleton clusters.
	minCampaignSize = 2

	recencyWindow = 30 * 24 * time.Hour
)

// stopwords are excluded from report keyword sets and campaign naming.
var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "against": {}, "allows": {}, "among": {},
	"analysis": {}, "attack": {}, "attacks": {}, "based": {}, "been": {},
	"before": {}, "being": {}, "between": {}, "campaign": {}, "could": {},
	"detected": {}, "during": {}, "every": {}, "found": {}, "group": {},
	"hackers": {}, "having": {}, "infected": {}, "inside": {}, "latest": {},
	"leads": {}, "more": {}, "multiple": {}, "new": {}, "newly": {},
	"observed": {}, "other": {}, "over": {}, "report": {}, "reports": {},
	"research": {}, "researchers": {}, "security": {}, "several": {},
	"should": {}, "since": {}, "targeting": {}, "targets": {}, "their": {},
	"these": {}, "this": {}, "those": {}, "threat": {}, "threats": {},
	"through": {}, "under": {}, "users": {}, "using": {}, "warns": {},
	"week": {}, "which": {}, "while": {}, "with": {}, "within": {},
	"would": {}, "years": {},
}

// knownActors is a small curated list used for heuristic attribution when no
// enrichment label is available.
var knownActors = []string{
	"lazarus", "conti", "lockbit", "blackcat", "apt28", "apt29",
	"fin7", "sandworm", "turla", "kimsuky", "scattered spider",
}

var sectorTags = map[string]struct{}{
	"Healthcare": {}, "Finance": {}, "Government": {}, "Energy": {}, "Education": {},
}

type cluster struct {
	reports  []Report
	keywords map[string]struct{}
}

// Correlate clusters the report collection into candidate campaigns using
// single-pass greedy keyword-overlap assignment.
//
// The traversal is order-dependent: each report joins the FIRST existing
// cluster whose accumulated keyword set overlaps above the threshold, so a
// different input order can legitimately produce different clusters. Callers
// must hand in reports in their stored order. Given identical input the pass
// is deterministic apart from generated campaign IDs.
//
// Precondition: reports must be fully populated (tags and indicators set by
// the ingestion normalizer); the keyword and shared-indicator signals are
// derived directly from those fields.
func Correlate(reports []Report, now time.Time) []Campaign {
	var clusters []*cluster

	for _, r := range reports {
		kws := reportKeywords(r)

		assigned := false
		for _, c := range clusters {
			if keywordSimilarity(kws, c.keywords) > similarityThreshold {
				c.reports = append(c.reports, r)
				for kw := range kws {
					c.keywords[kw] = struct{}{}
				}
				assigned = true
				break
			}
		}
		if !assigned {
			clusters = append(clusters, &cluster{
				reports:  []Report{r},
				keywords: kws,
			})
		}
	}

	var campaigns []Campaign
	for _, c := range clusters {
		if len(c.reports) < minCampaignSize {
			continue
		}
		campaigns = append(campaigns, buildCampaign(c, now))
	}

	sort.SliceStable(campaigns, func(i, j int) bool {
		if campaigns[i].Severity.Rank() != campaigns[j].Severity.Rank() {
			return campaigns[i].Severity.Rank() > campaigns[j].Severity.Rank()
		}
		return campaigns[i].Confidence > campaigns[j].Confidence
	})

	return campaigns
}

// reportKeywords derives the similarity signal for one report: its tags plus
// title tokens longer than 4 and description tokens longer than 5, minus
// stopwords.
func reportKeywords(r Report) map[string]struct{} {
	kws := make(map[string]struct{})

	for _, tag := range r.Tags {
		kws[strings.ToLower(tag)] = struct{}{}
	}
	for _, tok := range tokenize(r.Title) {
		if len(tok) > 4 && !isStopword(tok) {
			kws[tok] = struct{}{}
		}
	}
	for _, tok := range tokenize(r.Description) {
		if len(tok) > 5 && !isStopword(tok) {
			kws[tok] = struct{}{}
		}
	}
	return kws
}

// keywordSimilarity is |intersection| / min(|a|, |b|).
func keywordSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}

	intersection := 0
	for kw := range smaller {
		if _, ok := larger[kw]; ok {
			intersection++
		}
	}
	return float64(intersection) / float64(len(smaller))
}

func buildCampaign(c *cluster, now time.Time) Campaign {
	first, last := c.reports[0].Timestamp, c.reports[0].Timestamp
	severity := c.reports[0].Severity
	var ageSum time.Duration

	for _, r := range c.reports {
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
		severity = MaxSeverity(severity, r.Severity)
		ageSum += now.Sub(r.Timestamp)
	}

	ids := make([]string, len(c.reports))
	for i, r := range c.reports {
		ids[i] = r.ID
	}

	name, description := heuristicLabel(c.reports)

	return Campaign{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		ReportIDs:     ids,
		Severity:      severity,
		Confidence:    campaignConfidence(len(c.reports), ageSum/time.Duration(len(c.reports)), sharedIndicatorCount(c.reports)),
		FirstSeen:     first,
		LastSeen:      last,
		ThreatActors:  deriveActors(c.reports),
		Techniques:    deriveTechniques(c.reports),
		TargetSectors: deriveSectors(c.reports),
	}
}

// campaignConfidence combines member count, recency and shared-indicator
// density into a 0-100 score:
//
//	min(100, round((min(n/2, 5) + max(0, 1 - avgAge/30d) + min(shared/5, 3)) * 11))
func campaignConfidence(memberCount int, avgAge time.Duration, shared int) int {
	countFactor := math.Min(float64(memberCount)/2, 5)
	recencyFactor := math.Max(0, 1-float64(avgAge.Milliseconds())/float64(recencyWindow.Milliseconds()))
	iocFactor := math.Min(float64(shared)/5, 3)

	confidence := int(math.Round((countFactor + recencyFactor + iocFactor) * 11))
	if confidence > 100 {
		confidence = 100
	}
	return confidence
}

// sharedIndicatorCount sums, per indicator type, the number of indicator
// values that appear in more than one member report.
func sharedIndicatorCount(reports []Report) int {
	shared := 0
	for _, t := range IndicatorTypes {
		seen := make(map[string]int)
		for _, r := range reports {
			for _, v := range uniqueValues(r.Indicators[t], t) {
				seen[v]++
			}
		}
		for _, n := range seen {
			if n > 1 {
				shared++
			}
		}
	}
	return shared
}

func uniqueValues(values []string, t IndicatorType) []string {
	set := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		norm := NormalizeIndicatorValue(v, t)
		if _, ok := set[norm]; ok {
			continue
		}
		set[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// heuristicLabel builds a fallback name and description from the most
// frequent non-stopword title tokens. Used whenever the enrichment service
// is unavailable; replaced in place when it responds.
func heuristicLabel(reports []Report) (string, string) {
	top := topTitleTokens(reports, 3)

	name := "Unnamed Campaign"
	if len(top) > 0 {
		parts := make([]string, len(top))
		for i, tok := range top {
			parts[i] = strings.ToUpper(tok[:1]) + tok[1:]
		}
		name = strings.Join(parts, " ") + " Campaign"
	}

	description := fmt.Sprintf("Cluster of %d related reports", len(reports))
	if len(top) > 0 {
		description += " referencing " + strings.Join(top, ", ")
	}
	return name, description
}

func topTitleTokens(reports []Report, n int) []string {
	counts := make(map[string]int)
	for _, r := range reports {
		for _, tok := range tokenize(r.Title) {
			if len(tok) > 4 && !isStopword(tok) {
				counts[tok]++
			}
		}
	}

	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})

	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return tokens
}

func deriveActors(reports []Report) []string {
	seen := make(map[string]struct{})
	var actors []string
	for _, actor := range knownActors {
		for _, r := range reports {
			if strings.Contains(strings.ToLower(r.Title), actor) {
				if _, ok := seen[actor]; !ok {
					seen[actor] = struct{}{}
					actors = append(actors, actor)
				}
				break
			}
		}
	}
	return actors
}

// deriveTechniques collects ATT&CK technique IDs from the members' hash
// buckets, where the extractor files them.
func deriveTechniques(reports []Report) []string {
	seen := make(map[string]struct{})
	var techniques []string
	for _, r := range reports {
		for _, v := range r.Indicators[FileHash] {
			upper := strings.ToUpper(v)
			if !attackPattern.MatchString(upper) {
				continue
			}
			if _, ok := seen[upper]; ok {
				continue
			}
			seen[upper] = struct{}{}
			techniques = append(techniques, upper)
		}
	}
	sort.Strings(techniques)
	return techniques
}

func deriveSectors(reports []Report) []string {
	seen := make(map[string]struct{})
	var sectors []string
	for _, r := range reports {
		for _, tag := range r.Tags {
			if _, isSector := sectorTags[tag]; !isSector {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			sectors = append(sectors, tag)
		}
	}
	sort.Strings(sectors)
	return sectors
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func isStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
