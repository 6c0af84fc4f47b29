package extraction

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// FieldProbe is one target field with its ordered candidate selectors.
// Probes run first match wins; Attr names an attribute to read instead of
// the node text.
type FieldProbe struct {
	Field     string   `yaml:"field"`
	Selectors []string `yaml:"selectors"`
	Attr      string   `yaml:"attr,omitempty"`
	List      bool     `yaml:"list,omitempty"`
}

// ProbeSet groups the probes for one extraction goal family
type ProbeSet struct {
	Name   string       `yaml:"name"`
	Probes []FieldProbe `yaml:"probes"`
}

// probesFile is the YAML document shape of the probe configuration
type probesFile struct {
	Sets []ProbeSet `yaml:"sets"`
}

// DOMFallback extracts fields with deterministic selector probing when the
// completion service is disabled or unavailable.
type DOMFallback struct {
	sets   map[string]ProbeSet
	logger arbor.ILogger
}

// NewDOMFallback loads probe tables from a YAML file. A missing file leaves
// the fallback running on built-in defaults.
func NewDOMFallback(probesPath string, logger arbor.ILogger) (*DOMFallback, error) {
	f := &DOMFallback{
		sets:   builtinProbeSets(),
		logger: logger,
	}

	if probesPath == "" {
		return f, nil
	}

	data, err := os.ReadFile(probesPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("path", probesPath).Msg("No probes file, using built-in selector tables")
			return f, nil
		}
		return nil, fmt.Errorf("failed to read probes file: %w", err)
	}

	var parsed probesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse probes file %s: %w", probesPath, err)
	}

	for _, set := range parsed.Sets {
		f.sets[set.Name] = set
	}

	logger.Debug().
		Int("sets", len(f.sets)).
		Str("path", probesPath).
		Msg("DOM probe tables loaded")

	return f, nil
}

// Extract probes the markup with the set matching the goal. The matched set
// is chosen by substring against the goal text, defaulting to "product".
func (f *DOMFallback) Extract(rawMarkup, goal string) (map[string]interface{}, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawMarkup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	set := f.selectSet(goal)
	fields := make(map[string]interface{})

	for _, probe := range set.Probes {
		if probe.List {
			if values := probeList(doc, probe); len(values) > 0 {
				fields[probe.Field] = values
			}
			continue
		}
		if value := probeFirst(doc, probe); value != "" {
			fields[probe.Field] = value
		}
	}

	return fields, nil
}

func (f *DOMFallback) selectSet(goal string) ProbeSet {
	lowered := strings.ToLower(goal)
	for name, set := range f.sets {
		if name != "product" && strings.Contains(lowered, name) {
			return set
		}
	}
	return f.sets["product"]
}

// probeFirst returns the first non-empty match across the probe's ordered
// selectors
func probeFirst(doc *goquery.Document, probe FieldProbe) string {
	for _, selector := range probe.Selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		value := probeValue(sel, probe.Attr)
		if value != "" {
			return value
		}
	}
	return ""
}

func probeList(doc *goquery.Document, probe FieldProbe) []interface{} {
	for _, selector := range probe.Selectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		var values []interface{}
		sel.Each(func(_ int, node *goquery.Selection) {
			if value := probeValue(node, probe.Attr); value != "" {
				values = append(values, value)
			}
		})
		if len(values) > 0 {
			return values
		}
	}
	return nil
}

func probeValue(sel *goquery.Selection, attr string) string {
	if attr != "" {
		value, _ := sel.Attr(attr)
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(sel.Text())
}

// builtinProbeSets covers the common fields of the target site when no
// probes file is deployed
func builtinProbeSets() map[string]ProbeSet {
	return map[string]ProbeSet{
		"product": {
			Name: "product",
			Probes: []FieldProbe{
				{Field: "name", Selectors: []string{"h1[itemprop=name]", "h1.product-name", ".product-title h1", "h1"}},
				{Field: "price", Selectors: []string{"[itemprop=price]", ".price-current", ".product-price", ".price"}},
				{Field: "description", Selectors: []string{"[itemprop=description]", ".product-description", "#description"}},
				{Field: "image", Selectors: []string{"img[itemprop=image]", ".product-image img", ".gallery img"}, Attr: "src"},
				{Field: "availability", Selectors: []string{"[itemprop=availability]", ".availability", ".stock-status"}},
				{Field: "brand", Selectors: []string{"[itemprop=brand]", ".product-brand", ".brand"}},
			},
		},
		"category": {
			Name: "category",
			Probes: []FieldProbe{
				{Field: "title", Selectors: []string{"h1.category-title", ".category-header h1", "h1"}},
				{Field: "products", Selectors: []string{".product-card .product-name", ".product-item .name", ".product-grid a[title]"}, List: true},
			},
		},
		"search": {
			Name: "search",
			Probes: []FieldProbe{
				{Field: "results", Selectors: []string{".search-result .product-name", ".results .product-item .name"}, List: true},
			},
		},
		"checkout": {
			Name: "checkout",
			Probes: []FieldProbe{
				{Field: "step_title", Selectors: []string{".checkout-step h2", ".step-title", "h1"}},
			},
		},
	}
}
