// Package search ranks library records against free-text queries. The
// primary path is a TF-IDF vector space with cosine similarity; when the
// corpus is too degenerate to index (all documents empty or stop-words
// only) it falls back to deterministic keyword scoring.
package search

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/paperdock/paperdock/internal/library"
	"github.com/paperdock/paperdock/internal/metrics"
)

// Result pairs a record with its relevance score. TF-IDF scores are cosine
// similarities in [0,1]; keyword-fallback scores are unbounded weights.
type Result struct {
	Record library.Record
	Score  float64
}

// Ranker searches a slice of records. It holds no index between calls; the
// library is small enough to vectorize per query, and rebuilding keeps the
// ranking trivially consistent with the records passed in.
type Ranker struct {
	maxVocabulary int
	logger        *zap.Logger
}

// NewRanker builds a Ranker with the given vocabulary cap.
func NewRanker(maxVocabulary int, logger *zap.Logger) *Ranker {
	if maxVocabulary <= 0 {
		maxVocabulary = 5000
	}
	return &Ranker{maxVocabulary: maxVocabulary, logger: logger}
}

// Search ranks records by relevance to query and returns at most topK
// results with non-zero scores, ordered by descending score. Ties keep the
// records' original order. Given identical inputs, output is identical.
func (r *Ranker) Search(query string, records []library.Record, topK int) []Result {
	if topK <= 0 || len(records) == 0 || strings.TrimSpace(query) == "" {
		return nil
	}

	docs := make([][]string, len(records))
	for i, rec := range records {
		docs[i] = tokenize(rec.SearchText())
	}
	vocab := r.buildVocabulary(docs)
	if len(vocab) == 0 {
		r.logger.Debug("vocabulary empty, using keyword fallback",
			zap.String("query", query),
			zap.Int("records", len(records)),
		)
		metrics.ObserveSearchQuery("keyword")
		return keywordSearch(query, records, topK)
	}
	metrics.ObserveSearchQuery("tfidf")
	return r.vectorSearch(query, records, docs, vocab, topK)
}

// buildVocabulary maps the corpus's surviving terms to vector dimensions,
// keeping at most maxVocabulary terms by highest document frequency. Ties
// break lexicographically so the cap is deterministic.
func (r *Ranker) buildVocabulary(docs [][]string) map[string]int {
	df := map[string]int{}
	for _, doc := range docs {
		seen := map[string]struct{}{}
		for _, term := range doc {
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}
	if len(df) == 0 {
		return nil
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > r.maxVocabulary {
		terms = terms[:r.maxVocabulary]
	}

	vocab := make(map[string]int, len(terms))
	sort.Strings(terms)
	for i, term := range terms {
		vocab[term] = i
	}
	return vocab
}

func (r *Ranker) vectorSearch(
	query string,
	records []library.Record,
	docs [][]string,
	vocab map[string]int,
	topK int,
) []Result {
	idf := inverseDocFrequency(docs, vocab)
	queryVec := vectorize(tokenize(query), vocab, idf)
	if norm(queryVec) == 0 {
		// The corpus indexed fine; the query just shares no terms with it.
		// Every cosine similarity would be zero, so nothing qualifies.
		return nil
	}
	normalize(queryVec)

	results := make([]Result, 0, len(records))
	for i, doc := range docs {
		docVec := vectorize(doc, vocab, idf)
		if norm(docVec) == 0 {
			continue
		}
		normalize(docVec)
		score := dot(queryVec, docVec)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Record: records[i], Score: score})
	}
	return top(results, topK)
}

// top sorts results by descending score, stable on ties, and truncates.
func top(results []Result, topK int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
