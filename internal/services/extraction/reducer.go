package extraction

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// mainContentSelectors are tried in order before falling back to density
// scoring. First match with meaningful text wins.
var mainContentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#main-content",
	"#content",
	".product-detail",
	".product-page",
	".main-content",
}

// boilerplateSelectors are removed before any content scoring
var boilerplateSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "header", "footer", "aside",
	"[class*=cookie]", "[class*=banner]", "[id*=cookie]",
	"[class*=sidebar]", "[class*=promo]",
	"[aria-hidden=true]", "[hidden]",
}

// Reducer strips page markup down to the content that matters for
// extraction: boilerplate removed, main content located, flattened to
// markdown-ish plain text.
type Reducer struct {
	converter *md.Converter
	logger    arbor.ILogger
}

// NewReducer creates a content reducer
func NewReducer(baseURL string, logger arbor.ILogger) *Reducer {
	return &Reducer{
		converter: md.NewConverter(baseURL, true, nil),
		logger:    logger,
	}
}

// Reduce turns raw page HTML into flattened text ready for chunking
func (r *Reducer) Reduce(rawMarkup string) (string, error) {
	if strings.TrimSpace(rawMarkup) == "" {
		return "", fmt.Errorf("markup is empty")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawMarkup))
	if err != nil {
		return "", fmt.Errorf("failed to parse markup: %w", err)
	}

	for _, selector := range boilerplateSelectors {
		doc.Find(selector).Remove()
	}

	// Inline-styled hidden nodes survive attribute selectors
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		normalized := strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(normalized, "display:none") || strings.Contains(normalized, "visibility:hidden") {
			sel.Remove()
		}
	})

	content := r.locateMainContent(doc)

	contentHTML, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("failed to serialize content: %w", err)
	}

	markdown, err := r.converter.ConvertString(contentHTML)
	if err != nil {
		// Conversion failure degrades to the node's plain text
		r.logger.Warn().Err(err).Msg("Markdown conversion failed, using plain text")
		markdown = content.Text()
	}

	flattened := collapseWhitespace(markdown)
	if flattened == "" {
		return "", fmt.Errorf("no content remained after reduction")
	}

	return flattened, nil
}

// locateMainContent tries structural selectors first, then falls back to
// scoring candidate containers by text density.
func (r *Reducer) locateMainContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range mainContentSelectors {
		candidate := doc.Find(selector).First()
		if candidate.Length() > 0 && len(strings.TrimSpace(candidate.Text())) > 200 {
			return candidate
		}
	}

	best := doc.Selection.Find("body").First()
	if best.Length() == 0 {
		best = doc.Selection
	}
	bestScore := 0.0

	doc.Find("div, section, td").Each(func(_ int, sel *goquery.Selection) {
		score := densityScore(sel)
		if score > bestScore {
			bestScore = score
			best = sel
		}
	})

	// A weak best candidate means the page has no dominant container; fall
	// back to the whole body.
	if bestScore < 200 {
		body := doc.Find("body").First()
		if body.Length() > 0 {
			return body
		}
	}

	return best
}

// densityScore favors containers with lots of text and few links:
// len(text) * (1 - 0.5*linkRatio)
func densityScore(sel *goquery.Selection) float64 {
	text := strings.TrimSpace(sel.Text())
	total := len(text)
	if total == 0 {
		return 0
	}

	linkChars := 0
	sel.Find("a").Each(func(_ int, link *goquery.Selection) {
		linkChars += len(strings.TrimSpace(link.Text()))
	})

	linkRatio := float64(linkChars) / float64(total)
	return float64(total) * (1 - 0.5*linkRatio)
}

// collapseWhitespace squeezes runs of blank lines and trims trailing spaces
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blankRun := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blankRun = 0
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
