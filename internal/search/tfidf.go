package search

import (
	"math"
	"strings"
	"unicode"
)

// tokenize lowercases the text, splits on non-alphanumeric runes, and drops
// stop-words and single-rune fragments.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := englishStopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// inverseDocFrequency computes smoothed IDF weights per vocabulary term:
// ln((1+N)/(1+df)) + 1, which keeps terms present in every document at a
// positive weight instead of zeroing them out.
func inverseDocFrequency(docs [][]string, vocab map[string]int) []float64 {
	df := make([]int, len(vocab))
	for _, doc := range docs {
		seen := map[int]struct{}{}
		for _, term := range doc {
			dim, ok := vocab[term]
			if !ok {
				continue
			}
			if _, dup := seen[dim]; dup {
				continue
			}
			seen[dim] = struct{}{}
			df[dim]++
		}
	}
	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for dim, count := range df {
		idf[dim] = math.Log((1+n)/(1+float64(count))) + 1
	}
	return idf
}

// vectorize builds the raw TF-IDF vector for one token stream.
func vectorize(tokens []string, vocab map[string]int, idf []float64) []float64 {
	vec := make([]float64, len(vocab))
	for _, term := range tokens {
		if dim, ok := vocab[term]; ok {
			vec[dim] += idf[dim]
		}
	}
	return vec
}

func norm(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// normalize scales vec to unit length in place. Callers check for a zero
// norm first.
func normalize(vec []float64) {
	n := norm(vec)
	if n == 0 {
		return
	}
	for i := range vec {
		vec[i] /= n
	}
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
