package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

const searchGoal = "Extract the search result list from this page: for each result capture id, name, price, url and availability"

var searchShape = map[string]interface{}{
	"results": []interface{}{
		map[string]interface{}{
			"id":    "product identifier",
			"name":  "product name",
			"price": "displayed price",
			"url":   "product page url",
		},
	},
}

// CrawlSearchResults runs a site search and persists the result set keyed by
// the query slug
func (s *Service) CrawlSearchResults(ctx context.Context, task *models.CrawlTask) error {
	query := task.PayloadString("query")
	if query == "" {
		return common.NewValidationError("crawl search", fmt.Errorf("payload query is required"))
	}

	searchURL := task.PayloadString("url")
	if searchURL == "" {
		searchURL = s.searchURL(query)
	}
	if searchURL == "" {
		return common.NewValidationError("crawl search", fmt.Errorf("no search url and no search path configured"))
	}

	html, err := s.fetchRenderedHTML(ctx, searchURL, true)
	if err != nil {
		return err
	}

	doc, err := s.extraction.Extract(ctx, html, searchGoal, interfaces.ExtractOptions{Shape: searchShape})
	if err != nil {
		return common.NewParseError("extract search", err)
	}

	results := fieldMaps(doc.Fields, "results")
	search := &models.SearchDocument{
		QuerySlug: common.Slugify(query),
		Query:     query,
		URL:       searchURL,
		Results:   results,
		Method:    doc.Method,
		CrawledAt: time.Now(),
	}

	if err := s.storage.DocumentStorage().SaveSearchResults(ctx, search); err != nil {
		return fmt.Errorf("save search %q: %w", query, err)
	}

	s.logger.Info().
		Str("query", query).
		Int("results", len(results)).
		Msg("Search crawled")
	s.publish(ctx, interfaces.EventSearchCrawled, map[string]interface{}{
		"query":   query,
		"results": len(results),
	})
	return nil
}

// searchURL builds the site search URL from the configured path template
func (s *Service) searchURL(query string) string {
	if s.site.SearchPath == "" {
		return ""
	}
	return strings.TrimRight(s.site.BaseURL, "/") + s.site.SearchPath + url.QueryEscape(query)
}
