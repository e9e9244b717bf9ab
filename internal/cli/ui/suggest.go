package ui

import (
	"sort"
	"strings"
)

// MaxSuggestionDistance is the largest edit distance Suggest accepts
const MaxSuggestionDistance = 3

// Suggest returns up to limit candidates within MaxSuggestionDistance of
// target, closest first. Matching ignores case.
func Suggest(target string, candidates []string, limit int) []string {
	type match struct {
		value    string
		distance int
	}
	var matches []match
	t := strings.ToLower(target)
	for _, c := range candidates {
		if d := Distance(t, strings.ToLower(c)); d <= MaxSuggestionDistance {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

	out := make([]string, 0, limit)
	for i := 0; i < len(matches) && i < limit; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// Distance is the Levenshtein distance between a and b, counted in runes
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
