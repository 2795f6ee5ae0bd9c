package vocab

import (
	"cmp"
	"slices"
)

// Build derives a vocabulary from a caption corpus, keeping words that occur
// at least minCount times. Words are ordered by descending frequency, then
// alphabetically, so the same corpus always yields the same ids.
func Build(captions []string, minCount int) *Vocab {
	counts := make(map[string]int)
	for _, c := range captions {
		for _, w := range Tokenize(c) {
			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w, n := range counts {
		if n >= minCount {
			words = append(words, w)
		}
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	// Tokenize never yields specials or empty words, so New cannot fail.
	v, err := New(words)
	if err != nil {
		panic(err)
	}
	return v
}
