package vector

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/playbookhq/playbook-mcp/internal/lexical"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// LocalDimension is the hashed bag-of-tokens embedding size.
const LocalDimension = 384

// LocalProvider is an in-process vector index. Embeddings are deterministic
// hashed token bags, so texts sharing vocabulary land near each other. It
// exists so the engine works with no external ANN service.
type LocalProvider struct {
	mu     sync.RWMutex
	skills map[string]localEntry
}

type localEntry struct {
	skill  Skill
	vector []float32
}

// NewLocalProvider creates an empty in-process index.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{
		skills: make(map[string]localEntry),
	}
}

func (l *LocalProvider) IndexSkill(_ context.Context, pb *types.Playbook) error {
	skill := skillFromPlaybook(pb)
	vec := embed(skill.Text)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.skills[skill.ID] = localEntry{skill: skill, vector: vec}
	return nil
}

func (l *LocalProvider) RemoveSkill(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.skills, id)
	return nil
}

func (l *LocalProvider) FindRelevantSkills(_ context.Context, query string, limit int, threshold float64) ([]Match, error) {
	queryVec := embed(query)

	l.mu.RLock()
	matches := make([]Match, 0, len(l.skills))
	for _, entry := range l.skills {
		score := cosineSimilarity(queryVec, entry.vector)
		if score >= threshold {
			matches = append(matches, Match{Skill: entry.skill, Score: score})
		}
	}
	l.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Skill.ID < matches[j].Skill.ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Close() error {
	return nil
}

// Len reports how many skills the index holds.
func (l *LocalProvider) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.skills)
}

// embed hashes each token into a fixed-size bucket histogram and normalizes
// to unit length.
func embed(text string) []float32 {
	vec := make([]float32, LocalDimension)
	for _, token := range lexical.Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%LocalDimension]++
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	// Both sides are unit vectors, so the dot product is the cosine.
	return dot
}
