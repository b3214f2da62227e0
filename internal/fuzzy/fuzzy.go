// Package fuzzy implements the token-set similarity scorer used by artist
// correction, the library store's fuzzy tier, and compilation-track
// matching (spec §4.2). It has no knowledge of any backing store.
package fuzzy

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/wxyc/library-lookup/internal/normalize"
)

const (
	// ArtistCorrectionThreshold is the minimum score for find_similar_artist.
	ArtistCorrectionThreshold = 85
	// LibraryMatchThreshold is the minimum score for the library store's fuzzy tier.
	LibraryMatchThreshold = 70
	// CompilationTrackThreshold is the minimum score for a tracklist entry to
	// count as matching the requested song.
	CompilationTrackThreshold = 80
)

// jaroWinklerBoostThreshold and prefixSize are smetrics.JaroWinkler's tuning
// knobs; these are the library's documented defaults.
const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

// jaccardBonusWeight scales how much exact token overlap can add on top of
// the character-level score. It is deliberately small and applied only to
// the character score's remaining headroom (1-charSim), so a single-token
// typo ("willias" for "williams") is judged almost entirely on character
// similarity instead of being dragged down by zero exact-token overlap.
const jaccardBonusWeight = 0.3

// TokenSetRatio scores the similarity of a and b in [0,100], invariant to
// token order and duplicates. The primary signal is a Jaro-Winkler
// character-level score over the sorted, deduplicated, space-joined token
// strings (order/duplicate invariant by construction), so a near-miss
// spelling within a single token still scores high. Jaccard similarity over
// the token sets is added only as a bonus for exact token overlap, scaled by
// the character score's headroom, so it can push an already-close match
// higher but never substitutes for character similarity that isn't there.
func TokenSetRatio(a, b string) int {
	tokensA := normalize.Tokenize(a)
	tokensB := normalize.Tokenize(b)

	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 100
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	jaccard := jaccardSimilarity(tokensA, tokensB)
	charSim := smetrics.JaroWinkler(sortedJoin(tokensA), sortedJoin(tokensB), jaroWinklerBoostThreshold, jaroWinklerPrefixSize)

	score := charSim + jaccardBonusWeight*jaccard*(1-charSim)
	if score > 1 {
		score = 1
	}
	return int(score*100 + 0.5)
}

func jaccardSimilarity(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func sortedJoin(tokens []string) string {
	set := toSet(tokens)
	unique := make([]string, 0, len(set))
	for t := range set {
		unique = append(unique, t)
	}
	sort.Strings(unique)
	return strings.Join(unique, " ")
}
