package scoring

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/playbookhq/playbook-mcp/internal/lexical"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

const (
	// strongSignalThreshold gates signal-driven candidate retrieval.
	strongSignalThreshold = 0.5
	// maxStrongSignals caps how many tags narrow a retrieval.
	maxStrongSignals = 5

	fuzzyMatchWeight = 0.5
	minFuzzyLength   = 2

	confidenceBoost    = 0.2
	playbookCountBoost = 0.3
)

// ExtractTypeSignals scores every vocabulary tag against the query. Each
// keyword contributes 1 for an exact substring match against the query, 0.5
// for a fuzzy token overlap; the sum is normalized by the keyword count and
// boosted by tag confidence and adoption. Tags with no keyword match at all
// contribute no signal regardless of boosts.
func ExtractTypeSignals(query string, vocabulary []*types.TagVocabularyEntry) map[string]float64 {
	queryLower := strings.ToLower(query)
	tokens := lexical.Tokenize(query)

	signals := make(map[string]float64)
	for _, entry := range vocabulary {
		if len(entry.Keywords) == 0 {
			continue
		}

		var matched float64
		for _, kw := range entry.Keywords {
			kw = strings.ToLower(kw)
			switch {
			case kw == "":
			case strings.Contains(queryLower, kw):
				matched++
			case fuzzyTokenMatch(tokens, kw):
				matched += fuzzyMatchWeight
			}
		}
		if matched == 0 {
			continue
		}

		strength := matched / float64(len(entry.Keywords))
		strength += entry.Confidence * confidenceBoost
		strength += math.Min(float64(entry.PlaybookCount)/100, playbookCountBoost)
		signals[entry.Name] = clamp01(strength)
	}
	return signals
}

// fuzzyTokenMatch reports whether any query token and the keyword contain
// each other, requiring at least two characters on both sides. Lengths are
// counted in runes so a single CJK character is excluded like a single Latin
// one.
func fuzzyTokenMatch(tokens []string, keyword string) bool {
	if utf8.RuneCountInString(keyword) < minFuzzyLength {
		return false
	}
	for _, token := range tokens {
		if utf8.RuneCountInString(token) < minFuzzyLength {
			continue
		}
		if strings.Contains(token, keyword) || strings.Contains(keyword, token) {
			return true
		}
	}
	return false
}

// StrongSignals selects the top tags whose strength clears 0.5, at most five,
// strongest first. An empty result means the caller should fall back to
// plain hybrid search.
func StrongSignals(signals map[string]float64) []string {
	type tagStrength struct {
		tag      string
		strength float64
	}
	strong := make([]tagStrength, 0, len(signals))
	for tag, strength := range signals {
		if strength > strongSignalThreshold {
			strong = append(strong, tagStrength{tag, strength})
		}
	}
	sort.Slice(strong, func(i, j int) bool {
		if strong[i].strength != strong[j].strength {
			return strong[i].strength > strong[j].strength
		}
		return strong[i].tag < strong[j].tag
	})
	if len(strong) > maxStrongSignals {
		strong = strong[:maxStrongSignals]
	}

	tags := make([]string, len(strong))
	for i, ts := range strong {
		tags[i] = ts.tag
	}
	return tags
}
