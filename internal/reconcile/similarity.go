package reconcile

// Similarity scores two channel names in [0,1] after normalization.
// It is symmetric, returns 1 for names with identical tokens (in any order)
// and 0 when the names share no characters or either normalizes to nothing.
func Similarity(a, b string) float64 {
	return keyRatio(matchKey(a), matchKey(b))
}

// keyRatio is the Levenshtein ratio 1 - d/max(len(a), len(b)).
func keyRatio(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if string(a) == string(b) {
		return 1
	}
	longest := max(len(a), len(b))
	d := levenshtein(a, b)
	return 1 - float64(d)/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
