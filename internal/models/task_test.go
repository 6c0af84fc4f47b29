package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrawlTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    TaskKind
		wantErr bool
	}{
		{"category", TaskKindCategory, false},
		{"product", TaskKindProduct, false},
		{"batch", TaskKindBatch, false},
		{"checkout", TaskKindCheckout, false},
		{"search", TaskKindSearch, false},
		{"update", TaskKindUpdate, false},
		{"empty kind", "", true},
		{"unknown kind", "reindex", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewCrawlTask(tt.kind, nil)
			err := task.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEffectiveMaxRetries(t *testing.T) {
	task := NewCrawlTask(TaskKindProduct, nil)
	assert.Equal(t, 3, task.EffectiveMaxRetries(3), "default options defer to scheduler")

	task.Options.MaxRetries = 0
	assert.Equal(t, 0, task.EffectiveMaxRetries(3), "explicit zero disables retries")

	task.Options.MaxRetries = 5
	assert.Equal(t, 5, task.EffectiveMaxRetries(3))
}

func TestPayloadAccessors(t *testing.T) {
	task := NewCrawlTask(TaskKindBatch, map[string]interface{}{
		"url":         "https://example.com/p/1",
		"product_ids": []interface{}{"p1", "p2", 3},
		"native_ids":  []string{"a", "b"},
	})

	assert.Equal(t, "https://example.com/p/1", task.PayloadString("url"))
	assert.Equal(t, "", task.PayloadString("missing"))
	assert.Equal(t, []string{"p1", "p2"}, task.PayloadStrings("product_ids"))
	assert.Equal(t, []string{"a", "b"}, task.PayloadStrings("native_ids"))
	assert.Nil(t, task.PayloadStrings("missing"))
}
