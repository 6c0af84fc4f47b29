package extraction

import (
	"encoding/json"
	"sort"
)

// MergePolicy controls how conflicting scalar values across chunk documents
// are resolved. The zero value is not usable; use DefaultMergePolicy.
type MergePolicy struct {
	// AverageNumbers averages conflicting numeric scalars instead of voting
	AverageNumbers bool

	// PreferLonger breaks frequency ties by string length
	PreferLonger bool
}

// DefaultMergePolicy matches the observed behavior of multi-chunk product
// extractions: average prices that drift between chunks, keep the most
// common value otherwise, prefer the more complete string on ties.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		AverageNumbers: true,
		PreferLonger:   true,
	}
}

// Merge combines per-chunk extraction results into one document. Inputs are
// consumed in chunk order; nil maps are skipped. The union of all keys
// survives; per-key resolution is:
//   - slices: concatenation with order-preserving dedupe
//   - maps: recursive merge
//   - scalars: single non-nil value wins outright, conflicts resolved by
//     the policy (numeric average, else frequency vote)
func Merge(policy MergePolicy, docs ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	var keyOrder []string
	values := make(map[string][]interface{})

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		// Deterministic key walk within one document
		keys := make([]string, 0, len(doc))
		for k := range doc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, seen := values[k]; !seen {
				keyOrder = append(keyOrder, k)
			}
			if doc[k] != nil {
				values[k] = append(values[k], doc[k])
			} else if _, seen := values[k]; !seen {
				values[k] = nil
			}
		}
	}

	for _, key := range keyOrder {
		merged[key] = resolveValues(policy, values[key])
	}
	return merged
}

func resolveValues(policy MergePolicy, vals []interface{}) interface{} {
	if len(vals) == 0 {
		return nil
	}
	if len(vals) == 1 {
		return vals[0]
	}

	switch vals[0].(type) {
	case []interface{}:
		return mergeSlices(vals)
	case map[string]interface{}:
		return mergeMaps(policy, vals)
	}

	return resolveScalar(policy, vals)
}

// mergeSlices concatenates all slice values and dedupes: objects by
// canonical JSON, scalars set-wise, first occurrence order preserved
func mergeSlices(vals []interface{}) []interface{} {
	seen := make(map[string]bool)
	var out []interface{}

	for _, v := range vals {
		slice, ok := v.([]interface{})
		if !ok {
			// Mixed types: treat the stray value as a one-element slice
			slice = []interface{}{v}
		}
		for _, item := range slice {
			key := canonicalKey(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
	}
	return out
}

func mergeMaps(policy MergePolicy, vals []interface{}) map[string]interface{} {
	maps := make([]map[string]interface{}, 0, len(vals))
	for _, v := range vals {
		if m, ok := v.(map[string]interface{}); ok {
			maps = append(maps, m)
		}
	}
	return Merge(policy, maps...)
}

// resolveScalar applies the policy to conflicting scalar values
func resolveScalar(policy MergePolicy, vals []interface{}) interface{} {
	// All equal is not a conflict
	first := canonicalKey(vals[0])
	allEqual := true
	for _, v := range vals[1:] {
		if canonicalKey(v) != first {
			allEqual = false
			break
		}
	}
	if allEqual {
		return vals[0]
	}

	if policy.AverageNumbers {
		if avg, ok := averageNumeric(vals); ok {
			return avg
		}
	}

	return frequencyVote(policy, vals)
}

// averageNumeric returns the mean when every conflicting value is numeric
func averageNumeric(vals []interface{}) (float64, bool) {
	sum := 0.0
	for _, v := range vals {
		f, ok := toFloat(v)
		if !ok {
			return 0, false
		}
		sum += f
	}
	return sum / float64(len(vals)), true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// frequencyVote picks the most common value; ties go to the longer string
// representation when the policy says so, otherwise first-seen wins
func frequencyVote(policy MergePolicy, vals []interface{}) interface{} {
	counts := make(map[string]int)
	byKey := make(map[string]interface{})
	var order []string

	for _, v := range vals {
		key := canonicalKey(v)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			byKey[key] = v
		}
		counts[key]++
	}

	bestKey := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[bestKey] {
			bestKey = key
			continue
		}
		if counts[key] == counts[bestKey] && policy.PreferLonger {
			if scalarLength(byKey[key]) > scalarLength(byKey[bestKey]) {
				bestKey = key
			}
		}
	}
	return byKey[bestKey]
}

func scalarLength(v interface{}) int {
	if s, ok := v.(string); ok {
		return len(s)
	}
	return len(canonicalKey(v))
}

// canonicalKey produces a stable identity string for dedupe and voting
func canonicalKey(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
