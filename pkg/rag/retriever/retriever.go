package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"safebot-be/internal/pkg/logger"
	"safebot-be/internal/repository/contract"
	"safebot-be/pkg/embedding"
	"safebot-be/pkg/store"
)

// ErrEmbeddingMismatch means the index was built with a different embedding
// provider or model than the one configured for queries.
var ErrEmbeddingMismatch = errors.New("embedding identity does not match the knowledge index")

// Config encapsulates search parameters
type Config struct {
	TopK        int
	MaxDistance float64 // drop passages farther than this; <= 0 keeps everything
}

func DefaultConfig() Config {
	return Config{
		TopK:        3,
		MaxDistance: 1.0,
	}
}

// Retriever embeds a query and returns the nearest protocol passages, or a
// sentinel.
type Retriever struct {
	embeddingProvider embedding.EmbeddingProvider
	index             contract.KnowledgeChunkRepository
	config            Config
	logger            logger.ILogger
}

func NewRetriever(
	embeddingProvider embedding.EmbeddingProvider,
	index contract.KnowledgeChunkRepository,
	config Config,
	logger logger.ILogger,
) *Retriever {
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	return &Retriever{
		embeddingProvider: embeddingProvider,
		index:             index,
		config:            config,
		logger:            logger,
	}
}

// VerifyIdentity fails when any indexed chunk was embedded under another
// identity. An empty index passes.
func (r *Retriever) VerifyIdentity(ctx context.Context) error {
	identities, err := r.index.EmbeddingIdentities(ctx)
	if err != nil {
		return fmt.Errorf("list index identities: %w", err)
	}
	want := r.embeddingProvider.Identity()
	for _, id := range identities {
		if id != want {
			return fmt.Errorf("%w: provider %q, index has %s", ErrEmbeddingMismatch, want, strings.Join(identities, ", "))
		}
	}
	return nil
}

// Retrieve returns at most k passages (config TopK when k <= 0). The context is
// always valid: no matches give the no-relevant sentinel, and a failure gives
// the unavailable sentinel together with the error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (store.RetrievedContext, error) {
	if k <= 0 {
		k = r.config.TopK
	}
	if strings.TrimSpace(query) == "" {
		return store.NoRelevantContext(), nil
	}

	if err := r.VerifyIdentity(ctx); err != nil {
		r.logger.Error("Retriever", "Index unusable for this query", map[string]interface{}{
			"error": err.Error(),
		})
		return store.UnavailableContext(), err
	}

	embeddingRes, err := r.embeddingProvider.Generate(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		r.logger.Error("Retriever", "Embedding generation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return store.UnavailableContext(), fmt.Errorf("embed query: %w", err)
	}

	scored, err := r.index.SearchNearest(ctx, embeddingRes.Embedding.Values, k, r.embeddingProvider.Identity())
	if err != nil {
		r.logger.Error("Retriever", "Vector search failed", map[string]interface{}{
			"error": err.Error(),
		})
		return store.UnavailableContext(), fmt.Errorf("vector search: %w", err)
	}

	passages := r.filter(scored)
	if len(passages) > k {
		passages = passages[:k]
	}

	r.logger.Debug("Retriever", "Search finished", map[string]interface{}{
		"query":    query,
		"raw":      len(scored),
		"accepted": len(passages),
	})
	return store.NewPassageContext(passages), nil
}

func (r *Retriever) filter(results []*contract.ScoredKnowledgeChunk) []store.Passage {
	kept := make([]*contract.ScoredKnowledgeChunk, 0, len(results))
	for i, res := range results {
		if res == nil || res.Chunk == nil {
			continue
		}
		if r.config.MaxDistance > 0 && res.Distance > r.config.MaxDistance {
			r.logger.Debug("Retriever", "Candidate filtered", map[string]interface{}{
				"rank":     i + 1,
				"distance": res.Distance,
				"source":   res.Chunk.SourceId,
			})
			continue
		}
		kept = append(kept, res)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
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

	passages := make([]store.Passage, len(kept))
	for i, res := range kept {
		passages[i] = store.Passage{
			Text:     res.Chunk.Content,
			SourceId: res.Chunk.SourceId,
			Page:     res.Chunk.Page,
			Distance: res.Distance,
		}
	}
	return passages
}
