package ui

import (
	"sort"
	"strings"
)

const (
	// DefaultMaxDistance is the default maximum edit distance to consider for fuzzy matching
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions is the default maximum number of suggestions to return
	DefaultMaxSuggestions = 3
)

// FuzzyMatchOptions configures fuzzy matching behavior
type FuzzyMatchOptions struct {
	MaxDistance    int  // Maximum Levenshtein distance to consider (default: 3)
	MaxSuggestions int  // Maximum number of suggestions to return (default: 3)
	CaseSensitive  bool // Whether matching is case-sensitive (default: false)
}

type suggestion struct {
	value    string
	distance int
}

// FindSimilar finds strings similar to the target using Levenshtein distance.
// Candidates are ordered closest first, ties keep their input order.
//
// Example:
//
//	FindSimilar("SR_SCA", []string{"SLM_PPA", "SR_SCA", "SP_PC"}, nil)
//	// Returns: ["SR_SCA"]
func FindSimilar(target string, candidates []string, opts *FuzzyMatchOptions) []string {
	o := FuzzyMatchOptions{MaxDistance: DefaultMaxDistance, MaxSuggestions: DefaultMaxSuggestions}
	if opts != nil {
		o = *opts
		if o.MaxDistance == 0 {
			o.MaxDistance = DefaultMaxDistance
		}
		if o.MaxSuggestions == 0 {
			o.MaxSuggestions = DefaultMaxSuggestions
		}
	}

	if !o.CaseSensitive {
		target = strings.ToLower(target)
	}

	var found []suggestion
	for _, candidate := range candidates {
		cmp := candidate
		if !o.CaseSensitive {
			cmp = strings.ToLower(candidate)
		}
		if dist := LevenshteinDistance(target, cmp); dist <= o.MaxDistance {
			found = append(found, suggestion{value: candidate, distance: dist})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].distance < found[j].distance
	})

	result := make([]string, 0, o.MaxSuggestions)
	for i := 0; i < len(found) && i < o.MaxSuggestions; i++ {
		result = append(result, found[i].value)
	}
	return result
}

// LevenshteinDistance returns the minimum number of single-byte insertions,
// deletions or substitutions turning s1 into s2
//
//	LevenshteinDistance("kitten", "sitting") // Returns: 3
func LevenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
