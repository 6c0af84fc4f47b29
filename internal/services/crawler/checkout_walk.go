package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

// maxCheckoutSteps bounds the walk so a looping flow cannot run forever
const maxCheckoutSteps = 6

// buySelectors are tried in order to enter the checkout flow from a
// product page
var buySelectors = []string{
	"#buy-button",
	".buy-button",
	".add-to-cart",
	"button[data-testid='buy-button']",
	"#btnComprar",
	".btn-comprar",
	"a[href*='checkout']",
}

// continueSelectors advance from one checkout step to the next
var continueSelectors = []string{
	"#continue",
	".continue",
	".btn-continuar",
	"button[data-testid='continue']",
	".checkout-next",
	"button[type='submit']",
}

// CrawlCheckoutProcess walks the multi-step purchase flow for a product and
// captures the step/form/field descriptor tree. The walk stays on one pooled
// page so the site session carries across steps.
func (s *Service) CrawlCheckoutProcess(ctx context.Context, task *models.CrawlTask) error {
	productID := task.PayloadString("product_id")
	startURL := task.PayloadString("url")
	if productID == "" && task.PayloadString("category") == "" {
		return common.NewValidationError("crawl checkout", fmt.Errorf("payload product_id or category is required"))
	}
	if startURL == "" {
		if productID != "" {
			if product, err := s.storage.DocumentStorage().GetProduct(ctx, productID); err == nil && product != nil {
				startURL = product.URL
			}
		}
		if startURL == "" {
			return common.NewValidationError("crawl checkout", fmt.Errorf("payload url is required"))
		}
	}

	if err := s.waitTurn(ctx); err != nil {
		return err
	}
	page, err := s.browser.AcquirePage(ctx)
	if err != nil {
		return common.NewBrowserCrashError("acquire page", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, startURL); err != nil {
		return common.NewTransientError("navigate "+startURL, err)
	}
	if err := s.enterCheckout(ctx, page); err != nil {
		return err
	}

	steps, err := s.walkSteps(ctx, page)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return common.NewStructuralError("crawl checkout", fmt.Errorf("no checkout forms found starting at %s", startURL))
	}

	descriptor := &models.CheckoutProcessDescriptor{
		ProductID:    productID,
		CategorySlug: task.PayloadString("category"),
		BaseURL:      steps[0].URL,
		Steps:        steps,
		CrawledAt:    time.Now(),
	}
	if err := s.storage.CheckoutStorage().SaveProcess(ctx, descriptor); err != nil {
		return fmt.Errorf("save checkout descriptor: %w", err)
	}

	s.logger.Info().
		Str("product_id", productID).
		Int("steps", len(steps)).
		Msg("Checkout process crawled")
	s.publish(ctx, interfaces.EventCheckoutCrawled, map[string]interface{}{
		"product_id": productID,
		"steps":      len(steps),
	})
	return nil
}

// enterCheckout clicks the first visible buy button. Pages that land
// directly on a checkout form have no buy button and pass through.
func (s *Service) enterCheckout(ctx context.Context, page interfaces.Page) error {
	for _, selector := range buySelectors {
		visible, err := page.IsVisible(ctx, selector)
		if err != nil || !visible {
			continue
		}
		if err := page.Click(ctx, selector); err != nil {
			return common.NewTransientError("click "+selector, err)
		}
		if err := page.WaitFor(ctx, "form", 10*time.Second); err != nil {
			s.logger.Debug().Err(err).Msg("No form appeared after buy click")
		}
		return nil
	}
	return nil
}

// walkSteps captures each checkout page and advances through continue
// buttons until the flow stops producing new pages
func (s *Service) walkSteps(ctx context.Context, page interfaces.Page) ([]models.CheckoutStep, error) {
	var steps []models.CheckoutStep
	visited := make(map[string]bool)

	for index := 0; index < maxCheckoutSteps; index++ {
		stepURL, err := page.CurrentURL(ctx)
		if err != nil {
			return nil, common.NewBrowserCrashError("current url", err)
		}
		if visited[stepURL] {
			break
		}
		visited[stepURL] = true

		html, err := page.HTML(ctx)
		if err != nil {
			return nil, common.NewBrowserCrashError("capture html", err)
		}
		forms, err := parseForms(html)
		if err != nil {
			return nil, common.NewParseError("parse forms", err)
		}
		if len(forms) == 0 && len(steps) > 0 {
			break
		}

		step := models.CheckoutStep{
			Index: index,
			Name:  stepName(stepURL, index),
			URL:   stepURL,
			Forms: forms,
		}

		advanced := false
		if index < maxCheckoutSteps-1 {
			advanced = s.advance(ctx, page)
		}
		if advanced {
			if next, err := page.CurrentURL(ctx); err == nil && next != stepURL {
				step.NextStepURL = next
			}
		}
		steps = append(steps, step)
		if !advanced || step.NextStepURL == "" {
			break
		}

		if err := s.waitTurn(ctx); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

func (s *Service) advance(ctx context.Context, page interfaces.Page) bool {
	for _, selector := range continueSelectors {
		visible, err := page.IsVisible(ctx, selector)
		if err != nil || !visible {
			continue
		}
		if err := page.Click(ctx, selector); err != nil {
			continue
		}
		if err := page.WaitFor(ctx, "form", 10*time.Second); err != nil {
			s.logger.Debug().Err(err).Msg("No form appeared after continue click")
		}
		return true
	}
	return false
}

// stepName derives a readable step name from the last URL path segment
func stepName(stepURL string, index int) string {
	trimmed := strings.TrimRight(stepURL, "/")
	if q := strings.IndexAny(trimmed, "?#"); q >= 0 {
		trimmed = trimmed[:q]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		segment := trimmed[i+1:]
		if segment != "" && !strings.Contains(segment, ".") {
			return segment
		}
	}
	return fmt.Sprintf("step-%d", index+1)
}

// parseForms extracts every form on a checkout page into descriptors.
// Radio inputs sharing a name collapse into one field with options.
func parseForms(html string) ([]models.FormDescriptor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var forms []models.FormDescriptor
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		descriptor := models.FormDescriptor{
			Action: form.AttrOr("action", ""),
		}

		radioGroups := make(map[string]int)
		form.Find("input, select, textarea").Each(func(_ int, el *goquery.Selection) {
			field, ok := parseField(form, el)
			if !ok {
				return
			}

			if field.Type == models.FieldTypeRadio {
				if i, seen := radioGroups[field.Name]; seen {
					descriptor.Fields[i].Options = append(descriptor.Fields[i].Options, field.Options...)
					if field.Required {
						descriptor.Fields[i].Required = true
					}
					return
				}
				radioGroups[field.Name] = len(descriptor.Fields)
			}
			descriptor.Fields = append(descriptor.Fields, field)
		})

		if len(descriptor.Fields) > 0 {
			forms = append(forms, descriptor)
		}
	})
	return forms, nil
}

func parseField(form *goquery.Selection, el *goquery.Selection) (models.FieldDescriptor, bool) {
	name := el.AttrOr("name", "")
	if name == "" {
		return models.FieldDescriptor{}, false
	}

	_, required := el.Attr("required")
	field := models.FieldDescriptor{
		Name:     name,
		Required: required,
		Label:    fieldLabel(form, el),
		Value:    el.AttrOr("value", ""),
	}

	switch goquery.NodeName(el) {
	case "select":
		field.Type = models.FieldTypeSelect
		el.Find("option").Each(func(_ int, opt *goquery.Selection) {
			field.Options = append(field.Options, models.FieldOption{
				Value: opt.AttrOr("value", ""),
				Text:  strings.TrimSpace(opt.Text()),
			})
		})
	case "textarea":
		field.Type = models.FieldTypeTextarea
	default:
		switch el.AttrOr("type", "text") {
		case "submit", "button", "image", "reset":
			return models.FieldDescriptor{}, false
		case "email":
			field.Type = models.FieldTypeEmail
		case "tel":
			field.Type = models.FieldTypeTel
		case "password":
			field.Type = models.FieldTypePassword
		case "number":
			field.Type = models.FieldTypeNumber
		case "checkbox":
			field.Type = models.FieldTypeCheckbox
		case "hidden":
			field.Type = models.FieldTypeHidden
		case "radio":
			field.Type = models.FieldTypeRadio
			field.Options = []models.FieldOption{{
				Value: el.AttrOr("value", ""),
				Text:  field.Label,
			}}
		default:
			field.Type = models.FieldTypeText
		}
	}
	return field, true
}

// fieldLabel resolves a field's label through the for attribute, falling
// back to placeholder and aria-label
func fieldLabel(form *goquery.Selection, el *goquery.Selection) string {
	if id := el.AttrOr("id", ""); id != "" {
		label := form.Find(fmt.Sprintf("label[for=%q]", id)).First()
		if text := strings.TrimSpace(label.Text()); text != "" {
			return text
		}
	}
	if placeholder := el.AttrOr("placeholder", ""); placeholder != "" {
		return placeholder
	}
	return el.AttrOr("aria-label", "")
}
