package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeSingletonUnchanged(t *testing.T) {
	doc := map[string]interface{}{
		"name":  "Smart TV",
		"price": "2999.90",
		"tags":  []interface{}{"tv", "4k"},
	}

	merged := Merge(DefaultMergePolicy(), doc)
	assert.Equal(t, doc["name"], merged["name"])
	assert.Equal(t, doc["price"], merged["price"])
	assert.Equal(t, doc["tags"], merged["tags"])
}

func TestMergeIdempotent(t *testing.T) {
	r := map[string]interface{}{
		"name": "Smart TV",
		"tags": []interface{}{"tv", "4k"},
	}

	once := Merge(DefaultMergePolicy(), r)
	twice := Merge(DefaultMergePolicy(), r, r)
	assert.Equal(t, once, twice, "merging [R] and [R,R] yields the same output")
}

func TestMergeListUnionDedupe(t *testing.T) {
	a := map[string]interface{}{"tags": []interface{}{"a", "b"}}
	b := map[string]interface{}{"tags": []interface{}{"b", "c"}}

	merged := Merge(DefaultMergePolicy(), a, b)
	assert.Equal(t, []interface{}{"a", "b", "c"}, merged["tags"])
}

func TestMergeObjectListDedupeByContent(t *testing.T) {
	a := map[string]interface{}{"products": []interface{}{
		map[string]interface{}{"id": "1", "name": "TV"},
	}}
	b := map[string]interface{}{"products": []interface{}{
		map[string]interface{}{"id": "1", "name": "TV"},
		map[string]interface{}{"id": "2", "name": "Radio"},
	}}

	merged := Merge(DefaultMergePolicy(), a, b)
	assert.Len(t, merged["products"], 2)
}

func TestMergeFrequencyVote(t *testing.T) {
	merged := Merge(DefaultMergePolicy(),
		map[string]interface{}{"price": "10"},
		map[string]interface{}{"price": "10"},
		map[string]interface{}{"price": "12"},
	)
	assert.Equal(t, "10", merged["price"], "most frequent value wins")
}

func TestMergeTieBrokenByLongerString(t *testing.T) {
	merged := Merge(DefaultMergePolicy(),
		map[string]interface{}{"name": "TV"},
		map[string]interface{}{"name": "Smart TV 55 inch"},
	)
	assert.Equal(t, "Smart TV 55 inch", merged["name"])
}

func TestMergeNumericScalarsAverage(t *testing.T) {
	merged := Merge(DefaultMergePolicy(),
		map[string]interface{}{"rating": 4.0},
		map[string]interface{}{"rating": 5.0},
	)
	assert.Equal(t, 4.5, merged["rating"])
}

func TestMergeNestedDocumentsRecursively(t *testing.T) {
	a := map[string]interface{}{"shipping": map[string]interface{}{"cost": "10.00"}}
	b := map[string]interface{}{"shipping": map[string]interface{}{"carrier": "correios"}}

	merged := Merge(DefaultMergePolicy(), a, b)
	shipping, ok := merged["shipping"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "10.00", shipping["cost"])
	assert.Equal(t, "correios", shipping["carrier"])
}

func TestMergeKeyUnionWithNils(t *testing.T) {
	merged := Merge(DefaultMergePolicy(),
		map[string]interface{}{"name": "TV", "price": nil},
		map[string]interface{}{"price": "99.90", "brand": "Acme"},
		nil,
	)
	assert.Equal(t, "TV", merged["name"])
	assert.Equal(t, "99.90", merged["price"], "nil values never beat real ones")
	assert.Equal(t, "Acme", merged["brand"])
}

func TestMergeEmptyInput(t *testing.T) {
	merged := Merge(DefaultMergePolicy())
	assert.Empty(t, merged)
}
