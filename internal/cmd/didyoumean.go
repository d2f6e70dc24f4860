package cmd

import "strings"

// maxSuggestDistance caps how far a typo may be from a known name
// before we stop suggesting it.
const maxSuggestDistance = 3

// levenshtein computes the edit distance between two strings using a
// single working row.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			substitution := diag
			if a[i-1] != b[j-1] {
				substitution++
			}
			diag = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, substitution)
		}
	}
	return row[len(b)]
}

func closestMatch(input string, candidates []string, normalize func(string) string) string {
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, c := range candidates {
		if d := levenshtein(input, normalize(c)); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// suggestCommand returns the known command closest to the unknown
// input, or "" when nothing is close enough.
func suggestCommand(unknown string, commands []string) string {
	return closestMatch(strings.ToLower(unknown), commands, strings.ToLower)
}

// suggestFlag is the flag variant: dashes are ignored for the distance
// but the match keeps its original spelling.
func suggestFlag(unknown string, flagNames []string) string {
	stripped := strings.ToLower(strings.TrimLeft(unknown, "-"))
	if stripped == "" {
		return ""
	}
	return closestMatch(stripped, flagNames, func(f string) string {
		return strings.ToLower(strings.TrimLeft(f, "-"))
	})
}
