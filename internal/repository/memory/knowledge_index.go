package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"safebot-be/internal/entity"
	"safebot-be/internal/repository/contract"

	"github.com/google/uuid"
)

var ErrDimensionMismatch = errors.New("query and chunk vectors have different dimensions")

// KnowledgeIndex is a brute-force cosine index for development and tests.
type KnowledgeIndex struct {
	mu     sync.RWMutex
	chunks []*entity.KnowledgeChunk
}

func NewKnowledgeIndex() *KnowledgeIndex {
	return &KnowledgeIndex{}
}

var _ contract.KnowledgeChunkRepository = &KnowledgeIndex{}

func (idx *KnowledgeIndex) SearchNearest(ctx context.Context, vector []float32, limit int, identity string) ([]*contract.ScoredKnowledgeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 3
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var scored []*contract.ScoredKnowledgeChunk
	for _, c := range idx.chunks {
		if c.EmbeddingIdentity != identity {
			continue
		}
		if len(c.EmbeddingValue) != len(vector) {
			return nil, ErrDimensionMismatch
		}
		copied := *c
		scored = append(scored, &contract.ScoredKnowledgeChunk{
			Chunk:    &copied,
			Distance: cosineDistance(vector, c.EmbeddingValue),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Chunk.SourceId != b.Chunk.SourceId {
			return a.Chunk.SourceId < b.Chunk.SourceId
		}
		if a.Chunk.Page != b.Chunk.Page {
			return a.Chunk.Page < b.Chunk.Page
		}
		return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (idx *KnowledgeIndex) ReplaceSource(ctx context.Context, sourceId string, chunks []*entity.KnowledgeChunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.chunks[:0]
	for _, c := range idx.chunks {
		if c.SourceId != sourceId {
			kept = append(kept, c)
		}
	}
	idx.chunks = kept

	now := time.Now()
	for _, c := range chunks {
		if c.Id == uuid.Nil {
			c.Id = uuid.New()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		copied := *c
		copied.EmbeddingValue = append([]float32(nil), c.EmbeddingValue...)
		idx.chunks = append(idx.chunks, &copied)
	}
	return nil
}

func (idx *KnowledgeIndex) DeleteAll(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.chunks = nil
	return nil
}

func (idx *KnowledgeIndex) EmbeddingIdentities(ctx context.Context) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	var identities []string
	for _, c := range idx.chunks {
		if _, ok := seen[c.EmbeddingIdentity]; ok {
			continue
		}
		seen[c.EmbeddingIdentity] = struct{}{}
		identities = append(identities, c.EmbeddingIdentity)
	}
	sort.Strings(identities)
	return identities, nil
}

func (idx *KnowledgeIndex) Count(ctx context.Context) (int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int64(len(idx.chunks)), nil
}

// cosineDistance matches pgvector's <=> operator: 1 - cosine similarity.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
