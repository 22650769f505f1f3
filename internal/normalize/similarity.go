package normalize

import "github.com/agext/levenshtein"

// Similarity returns the percentage similarity of two strings:
// (1 - distance/maxLen) * 100, over runes. Two empty strings are 100.
func Similarity(a, b string) float64 {
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 100
	}
	d := levenshtein.Distance(a, b, nil)
	return (1 - float64(d)/float64(maxLen)) * 100
}
