package extraction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

// Service composes the extraction pipeline: reduce, chunk, cached parallel
// extract, merge, with the DOM fallback behind it. Implements
// interfaces.ExtractionService.
type Service struct {
	config     *common.ExtractionConfig
	completion interfaces.CompletionService
	reducer    *Reducer
	chunker    *Chunker
	cache      *Cache
	fallback   *DOMFallback
	policy     MergePolicy
	logger     arbor.ILogger
}

// NewService creates the extraction pipeline service
func NewService(
	config *common.ExtractionConfig,
	completion interfaces.CompletionService,
	cacheStorage interfaces.CacheStorage,
	baseURL string,
	logger arbor.ILogger,
) (*Service, error) {
	cache, err := NewCache(config.MemoryCacheSize, config.CacheTTL, cacheStorage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction cache: %w", err)
	}

	fallback, err := NewDOMFallback(config.ProbesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create DOM fallback: %w", err)
	}

	return &Service{
		config:     config,
		completion: completion,
		reducer:    NewReducer(baseURL, logger),
		chunker:    NewChunker(config.ChunkSize),
		cache:      cache,
		fallback:   fallback,
		policy:     DefaultMergePolicy(),
		logger:     logger,
	}, nil
}

// Extract turns raw markup into a structured document. Only empty markup or
// an empty goal fail fast; everything else degrades the output instead.
func (s *Service) Extract(ctx context.Context, rawMarkup string, goal string, opts interfaces.ExtractOptions) (*models.ExtractionDocument, error) {
	if strings.TrimSpace(rawMarkup) == "" {
		return nil, fmt.Errorf("markup cannot be empty")
	}
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("extraction goal cannot be empty")
	}

	useLLM := !opts.ForceDOM && s.completion != nil && s.completion.IsAvailable()

	if !useLLM {
		fields, err := s.fallback.Extract(rawMarkup, goal)
		if err != nil {
			return nil, fmt.Errorf("dom fallback failed: %w", err)
		}
		return &models.ExtractionDocument{
			Fields: fields,
			Method: models.ExtractionMethodDOM,
		}, nil
	}

	reduced, err := s.reducer.Reduce(rawMarkup)
	if err != nil {
		return nil, fmt.Errorf("content reduction failed: %w", err)
	}

	chunks := s.chunker.Split(reduced, goal, s.completion.ModelID())
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no content remained after chunking")
	}

	startTime := time.Now()
	results, failedChunks := s.dispatch(ctx, chunks, goal, opts.Shape)

	merged := Merge(s.policy, results...)

	doc := &models.ExtractionDocument{
		Fields: merged,
		Method: models.ExtractionMethodLLM,
	}

	// Degraded or empty LLM output gets a DOM pass layered underneath, LLM
	// values taking precedence.
	if failedChunks > 0 || len(merged) == 0 {
		if domFields, domErr := s.fallback.Extract(rawMarkup, goal); domErr == nil && len(domFields) > 0 {
			doc.Fields = shallowMerge(domFields, merged)
			doc.Method = models.ExtractionMethodHybrid
		}
		if failedChunks > 0 {
			doc.Error = fmt.Sprintf("%d of %d chunks failed extraction", failedChunks, len(chunks))
		}
	}

	s.logger.Debug().
		Int("chunks", len(chunks)).
		Int("failed_chunks", failedChunks).
		Int("keys", len(doc.Fields)).
		Str("method", string(doc.Method)).
		Dur("duration", time.Since(startTime)).
		Msg("Extraction finished")

	return doc, nil
}

// dispatch runs chunks in batches of MaxParallelChunks, batches sequential
// with an inter-batch delay. Chunk order survives via indexed result slots.
func (s *Service) dispatch(ctx context.Context, chunks []Chunk, goal string, shape map[string]interface{}) ([]map[string]interface{}, int) {
	results := make([]map[string]interface{}, len(chunks))
	failed := 0
	var mu sync.Mutex

	batchSize := s.config.MaxParallelChunks
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		var wg sync.WaitGroup
		for _, chunk := range chunks[start:end] {
			wg.Add(1)
			go func(ch Chunk) {
				defer wg.Done()
				fields, err := s.extractChunk(ctx, ch, goal, shape)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					s.logger.Warn().
						Err(err).
						Str("chunk", ch.Label()).
						Msg("Chunk extraction failed, degrading merge")
					failed++
					return
				}
				results[ch.Index] = fields
			}(chunk)
		}
		wg.Wait()

		if end < len(chunks) && s.config.BatchDelay > 0 {
			select {
			case <-time.After(s.config.BatchDelay):
			case <-ctx.Done():
				return results, failed + (len(chunks) - end)
			}
		}
	}

	return results, failed
}

// extractChunk consults the cache, then calls the completion service with
// bounded retries. Parse failures are salvaged, never retried at task level.
func (s *Service) extractChunk(ctx context.Context, chunk Chunk, goal string, shape map[string]interface{}) (map[string]interface{}, error) {
	if cached := s.cache.Get(ctx, chunk.CacheKey); cached != nil {
		return cached, nil
	}

	prompt := BuildPrompt(chunk, goal, shape)
	attempts := s.config.ChunkRetries
	if attempts < 0 {
		attempts = 0
	}

	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		response, err := s.completion.Complete(ctx, interfaces.CompletionRequest{
			System: extractionSystemPrompt,
			Prompt: prompt,
		})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		fields := ParseModelResponse(response)
		s.cache.Put(ctx, chunk.CacheKey, fields)
		return fields, nil
	}

	return nil, fmt.Errorf("chunk extraction attempts exhausted: %w", lastErr)
}

// shallowMerge overlays every non-nil value of over onto base
func shallowMerge(base, over map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
