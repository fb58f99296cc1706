// Package knowledge retrieves reference passages for RAG-enabled personas.
package knowledge

import (
	"context"
	"sort"
	"strings"

	"groupchat/pkg/store"
)

// Retriever returns up to topK passages relevant to a query from a named
// knowledge base.
type Retriever interface {
	Retrieve(ctx context.Context, base, query string, topK int) ([]string, error)
}

// StoreRetriever ranks documents from the KV store by keyword overlap.
// It is the default backend: no extra infrastructure, good enough for
// small curated knowledge bases.
type StoreRetriever struct{}

func NewStoreRetriever() *StoreRetriever { return &StoreRetriever{} }

func (s *StoreRetriever) Retrieve(ctx context.Context, base, query string, topK int) ([]string, error) {
	docs, err := store.ListDocs(base)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 3
	}
	type scored struct {
		text  string
		score int
	}
	terms := tokenize(query)
	ranked := make([]scored, 0, len(docs))
	for _, d := range docs {
		sc := overlap(d, terms)
		if sc > 0 {
			ranked = append(ranked, scored{text: d, score: sc})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.text)
	}
	return out, nil
}

// tokenize splits a query into match terms. CJK text has no word
// boundaries, so runs of CJK characters are broken into bigrams.
func tokenize(q string) []string {
	var terms []string
	var cjk []rune
	flushCJK := func() {
		if len(cjk) == 1 {
			terms = append(terms, string(cjk))
		}
		for i := 0; i+1 < len(cjk); i++ {
			terms = append(terms, string(cjk[i:i+2]))
		}
		cjk = cjk[:0]
	}
	var word []rune
	flushWord := func() {
		if len(word) > 0 {
			terms = append(terms, strings.ToLower(string(word)))
			word = word[:0]
		}
	}
	for _, r := range q {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			flushWord()
			cjk = append(cjk, r)
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			flushCJK()
			word = append(word, r)
		default:
			flushCJK()
			flushWord()
		}
	}
	flushCJK()
	flushWord()
	return terms
}

func overlap(doc string, terms []string) int {
	lower := strings.ToLower(doc)
	score := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			score++
		}
	}
	return score
}
