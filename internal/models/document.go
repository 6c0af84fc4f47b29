package models

import "time"

// ExtractionMethod records which path produced an extraction document
type ExtractionMethod string

const (
	// ExtractionMethodLLM means the completion service produced the document
	ExtractionMethodLLM ExtractionMethod = "llm"
	// ExtractionMethodDOM means selector probes produced the document
	ExtractionMethodDOM ExtractionMethod = "dom"
	// ExtractionMethodHybrid means DOM results were merged under LLM results
	ExtractionMethodHybrid ExtractionMethod = "hybrid"
)

// ExtractionDocument is the schemaless output of one extraction run. Fields
// holds whatever structure the goal asked for; Error carries a degradation
// note when part of the pipeline failed without sinking the whole run.
type ExtractionDocument struct {
	Fields map[string]interface{} `json:"fields"`
	Method ExtractionMethod       `json:"method"`
	Error  string                 `json:"error,omitempty"`
}

// ProductDocument is a persisted product extraction keyed by product ID
type ProductDocument struct {
	ID        string                 `json:"id"`
	URL       string                 `json:"url"`
	Name      string                 `json:"name"`
	Price     string                 `json:"price"`
	Available bool                   `json:"available"`
	Category  string                 `json:"category"` // Category slug the product was discovered under
	Fields    map[string]interface{} `json:"fields"`   // Full extraction output
	Method    ExtractionMethod       `json:"method"`
	CrawledAt time.Time              `json:"crawled_at"`
}

// IsStale reports whether the document is older than the given window
func (d *ProductDocument) IsStale(window time.Duration) bool {
	return time.Since(d.CrawledAt) > window
}

// CategoryDocument is a persisted category listing keyed by slug
type CategoryDocument struct {
	Slug       string                   `json:"slug"`
	Name       string                   `json:"name"`
	URL        string                   `json:"url"`
	ProductIDs []string                 `json:"product_ids"`
	Products   []map[string]interface{} `json:"products"` // Listing-level product summaries
	Method     ExtractionMethod         `json:"method"`
	CrawledAt  time.Time                `json:"crawled_at"`
}

// SearchDocument is a persisted search result set keyed by the query slug
type SearchDocument struct {
	QuerySlug string                   `json:"query_slug"`
	Query     string                   `json:"query"`
	URL       string                   `json:"url"`
	Results   []map[string]interface{} `json:"results"`
	Method    ExtractionMethod         `json:"method"`
	CrawledAt time.Time                `json:"crawled_at"`
}

// CacheEntry is one persisted extraction result, content-addressed by the
// hash of (chunk text, goal, model identity)
type CacheEntry struct {
	Key      string                 `json:"key"`
	Fields   map[string]interface{} `json:"fields"`
	StoredAt time.Time              `json:"stored_at"`
}

// IsStale reports whether the entry has outlived the cache TTL
func (e *CacheEntry) IsStale(ttl time.Duration) bool {
	return time.Since(e.StoredAt) > ttl
}
