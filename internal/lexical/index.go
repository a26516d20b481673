// Package lexical implements the in-memory inverted index and BM25 scoring
// used as the keyword leg of hybrid retrieval. The index is process-local;
// deployments spanning multiple processes rebuild it from the authoritative
// corpus on startup.
package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// k1 controls term-frequency saturation. Document-length normalization is
// folded into k1; there is no separate b term.
const k1 = 2.2

// Result is one lexical hit: a document id and its BM25 score.
type Result struct {
	ID    string
	Score float64
}

// Index maps document ids to term-frequency maps and tracks per-term
// document frequencies for IDF computation.
type Index struct {
	mu    sync.RWMutex
	docs  map[string]map[string]int // id -> term -> tf
	df    map[string]int            // term -> number of docs containing it
	count int
}

// NewIndex creates an empty lexical index.
func NewIndex() *Index {
	return &Index{
		docs: make(map[string]map[string]int),
		df:   make(map[string]int),
	}
}

// Indexed reports whether the document id is present.
func (idx *Index) Indexed(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.docs[id]
	return ok
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}

// Index tokenizes text and stores the document's term-frequency map,
// replacing any previous entry for the same id.
func (idx *Index) Index(id, text string) {
	tf := make(map[string]int)
	for _, tok := range Tokenize(text) {
		tf[tok]++
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.docs[id]; ok {
		for term := range old {
			idx.df[term]--
			if idx.df[term] <= 0 {
				delete(idx.df, term)
			}
		}
		idx.count--
	}

	idx.docs[id] = tf
	for term := range tf {
		idx.df[term]++
	}
	idx.count++
}

// Remove drops the document from the index. Unknown ids are a no-op.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tf, ok := idx.docs[id]
	if !ok {
		return
	}
	for term := range tf {
		idx.df[term]--
		if idx.df[term] <= 0 {
			delete(idx.df, term)
		}
	}
	delete(idx.docs, id)
	idx.count--
}

// Clear empties the index.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = make(map[string]map[string]int)
	idx.df = make(map[string]int)
	idx.count = 0
}

// Search scores every indexed document against the query's tokens and
// returns up to limit results ordered by descending BM25 score. Documents
// with zero score are omitted.
func (idx *Index) Search(query string, limit int) []Result {
	tokens := Tokenize(query)
	if len(tokens) == 0 || limit <= 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.count == 0 {
		return nil
	}

	n := float64(idx.count)
	results := make([]Result, 0, len(idx.docs))
	for id, tf := range idx.docs {
		var score float64
		for _, term := range tokens {
			f, ok := tf[term]
			if !ok {
				continue
			}
			df := float64(idx.df[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			freq := float64(f)
			score += idf * (freq * (k1 + 1)) / (freq + k1)
		}
		if score > 0 {
			results = append(results, Result{ID: id, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Tokenize splits mixed CJK/Latin text. Each CJK rune becomes its own token;
// Latin/digit runs become lowercased word tokens, dropped when a single
// character.
func Tokenize(text string) []string {
	var tokens []string
	var word strings.Builder

	flush := func() {
		if word.Len() > 1 {
			tokens = append(tokens, strings.ToLower(word.String()))
		}
		word.Reset()
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// isCJK reports whether r is a Han, kana, or hangul character.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
