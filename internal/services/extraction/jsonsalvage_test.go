package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelResponseCleanJSON(t *testing.T) {
	doc := ParseModelResponse(`{"name": "Smart TV", "price": "2999.90"}`)
	assert.Equal(t, "Smart TV", doc["name"])
	assert.Equal(t, "2999.90", doc["price"])
}

func TestParseModelResponseFencedJSON(t *testing.T) {
	raw := "Here is the extracted data:\n```json\n{\"name\": \"Smart TV\"}\n```\nLet me know if you need more."
	doc := ParseModelResponse(raw)
	assert.Equal(t, "Smart TV", doc["name"])
}

func TestParseModelResponsePicksLargestObject(t *testing.T) {
	raw := `{"note": "partial"} some prose {"name": "Smart TV", "price": "2999.90", "brand": "Acme"}`
	doc := ParseModelResponse(raw)
	assert.Equal(t, "Smart TV", doc["name"])
	assert.Equal(t, "Acme", doc["brand"])
}

func TestParseModelResponseBracesInsideStrings(t *testing.T) {
	raw := `prefix {"desc": "curly {not a brace}", "name": "TV"} suffix`
	doc := ParseModelResponse(raw)
	assert.Equal(t, "TV", doc["name"])
	assert.Equal(t, "curly {not a brace}", doc["desc"])
}

func TestParseModelResponseKeyValueLines(t *testing.T) {
	raw := "name: Smart TV\nprice: 2999.90\n- brand: Acme"
	doc := ParseModelResponse(raw)
	assert.Equal(t, "Smart TV", doc["name"])
	assert.Equal(t, "2999.90", doc["price"])
	assert.Equal(t, "Acme", doc["brand"])
}

func TestParseModelResponseWrapsPlainText(t *testing.T) {
	raw := "The page appears to be a product listing without structured data"
	doc := ParseModelResponse(raw)
	require.Contains(t, doc, "text")
	assert.Equal(t, raw, doc["text"])
}

func TestParseModelResponseEmpty(t *testing.T) {
	doc := ParseModelResponse("   ")
	assert.Empty(t, doc)
}
