package checkout

import (
	"strings"

	"github.com/ternarybob/merx/internal/models"
)

// resolveInfoValue walks the resolution order for a form field against the
// collected info map: exact name match, label first token, then the
// canonical-concept synonym tables.
func resolveInfoValue(field models.FieldDescriptor, info map[string]string) (string, bool) {
	if v, ok := lookupKey(info, field.Name); ok {
		return v, true
	}
	if token := firstToken(field.Label); token != "" {
		if v, ok := lookupKey(info, token); ok {
			return v, true
		}
	}

	concept := conceptOf(field.Name)
	if concept == ConceptUnknown {
		concept = conceptOf(firstToken(field.Label))
	}
	if concept == ConceptUnknown {
		return "", false
	}
	return lookupConcept(info, concept)
}

// lookupKey finds an info entry by case-insensitive, separator-insensitive
// key comparison
func lookupKey(info map[string]string, key string) (string, bool) {
	want := normalizeToken(key)
	if want == "" {
		return "", false
	}
	for k, v := range info {
		if normalizeToken(k) == want && v != "" {
			return v, true
		}
	}
	return "", false
}

// lookupConcept finds an info entry whose key resolves to the given concept
func lookupConcept(info map[string]string, concept Concept) (string, bool) {
	for k, v := range info {
		if v != "" && conceptOf(k) == concept {
			return v, true
		}
	}
	return "", false
}

// mapFieldValue produces the value a checkout form field would be filled
// with, or reports absent. Strategy is keyed on the field's declared type.
func mapFieldValue(field models.FieldDescriptor, info map[string]string) (string, bool) {
	switch field.Type {
	case models.FieldTypePassword:
		// never mapped, password values must not leave the session
		return "", false

	case models.FieldTypeHidden:
		if field.Value != "" {
			return field.Value, true
		}
		return "", false

	case models.FieldTypeEmail:
		if v, ok := lookupConcept(info, ConceptEmail); ok {
			return v, true
		}
		return resolveInfoValue(field, info)

	case models.FieldTypeTel:
		return mapTelField(field, info)

	case models.FieldTypeSelect, models.FieldTypeRadio:
		return mapChoiceField(field, info)

	case models.FieldTypeCheckbox:
		return mapCheckboxField(field, info)

	case models.FieldTypeNumber:
		return mapNumberField(field, info)

	default:
		if v, ok := lookupKey(info, field.Name); ok {
			return v, true
		}
		if v, ok := resolveInfoValue(field, info); ok {
			return v, true
		}
		if field.Required && field.Value != "" {
			return field.Value, true
		}
		return "", false
	}
}

// mapTelField prefers a mobile number when the field itself asks for one
func mapTelField(field models.FieldDescriptor, info map[string]string) (string, bool) {
	if impliesMobile(field.Name) || impliesMobile(field.Label) {
		for _, key := range []string{"mobile", "celular", "cellphone"} {
			if v, ok := lookupKey(info, key); ok {
				return v, true
			}
		}
	}
	if v, ok := lookupConcept(info, ConceptPhone); ok {
		return v, true
	}
	return resolveInfoValue(field, info)
}

func impliesMobile(s string) bool {
	normalized := normalizeToken(s)
	return strings.Contains(normalized, "mobile") ||
		strings.Contains(normalized, "celular") ||
		strings.Contains(normalized, "cell")
}

// mapChoiceField picks the option whose text or value contains the resolved
// value as a case-insensitive substring. Required fields with no resolvable
// value fall back to the first non-empty option.
func mapChoiceField(field models.FieldDescriptor, info map[string]string) (string, bool) {
	if resolved, ok := resolveInfoValue(field, info); ok {
		needle := strings.ToLower(resolved)
		for _, opt := range field.Options {
			if strings.Contains(strings.ToLower(opt.Text), needle) ||
				strings.Contains(strings.ToLower(opt.Value), needle) {
				return opt.Value, true
			}
		}
	}
	if field.Required {
		for _, opt := range field.Options {
			if opt.Value != "" {
				return opt.Value, true
			}
		}
	}
	return "", false
}

// mapCheckboxField marks required boxes unconditionally. Optional boxes such
// as newsletter opt-ins follow the collected boolean; terms acceptance is
// always on since a checkout cannot proceed without it.
func mapCheckboxField(field models.FieldDescriptor, info map[string]string) (string, bool) {
	if field.Required {
		return "on", true
	}
	concept := conceptOf(field.Name)
	if concept == ConceptUnknown {
		concept = conceptOf(firstToken(field.Label))
	}
	if concept == ConceptTerms {
		return "on", true
	}
	if v, ok := lookupKey(info, field.Name); ok && isTruthy(v) {
		return "on", true
	}
	return "", false
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on", "sim":
		return true
	}
	return false
}

// mapNumberField handles the quantity and age concepts explicitly; quantity
// defaults to a single unit when the user never set one
func mapNumberField(field models.FieldDescriptor, info map[string]string) (string, bool) {
	concept := conceptOf(field.Name)
	if concept == ConceptUnknown {
		concept = conceptOf(firstToken(field.Label))
	}

	switch concept {
	case ConceptQuantity:
		if v, ok := lookupConcept(info, ConceptQuantity); ok {
			return v, true
		}
		return "1", true
	case ConceptAge:
		return lookupConcept(info, ConceptAge)
	}
	return lookupKey(info, field.Name)
}

// fieldSatisfied reports whether a required field would receive a value
// given the currently collected info
func fieldSatisfied(field models.FieldDescriptor, info map[string]string) bool {
	_, ok := mapFieldValue(field, info)
	return ok
}
