//
//  Copyright © Manetu Inc. All rights reserved.
//

package types

import (
	"testing"

	"github.com/caseaccess/accessengine/pkg/core/consent"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "org": {"tier": 2},
  "user_id": "alice",
  "action": "note.view",
  "target": {
    "entity_id": "ind-1",
    "fields": ["phone"],
    "surface": "listing",
    "content": [{"id": "n1", "authoring_unit": "p1"}]
  }
}`

func TestUnmarshalRequest(t *testing.T) {
	want := &Request{
		Org:    model.OrgSettings{Tier: model.Tier2},
		UserID: "alice",
		Action: "note.view",
		Target: Target{
			EntityID: "ind-1",
			Fields:   []string{"phone"},
			Surface:  consent.Listing,
			Content:  []consent.Content{{ID: "n1", AuthoringUnit: "p1"}},
		},
	}

	var tests = []struct {
		name  string
		input AnyRequest
	}{
		{"string", sample},
		{"bytes", []byte(sample)},
		{"map", map[string]interface{}{
			"org":     map[string]interface{}{"tier": 2},
			"user_id": "alice",
			"action":  "note.view",
			"target": map[string]interface{}{
				"entity_id": "ind-1",
				"fields":    []interface{}{"phone"},
				"surface":   "listing",
				"content":   []interface{}{map[string]interface{}{"id": "n1", "authoring_unit": "p1"}},
			},
		}},
		{"value", *want},
		{"pointer", want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalRequest(tt.input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := UnmarshalRequest(42)
	assert.Error(t, err)
	_, err = UnmarshalRequest("{not json")
	assert.Error(t, err)
}

func TestDecisionAllowed(t *testing.T) {
	var d *Decision
	assert.False(t, d.Allowed())
	assert.True(t, (&Decision{Outcome: Allow}).Allowed())
	assert.False(t, (&Decision{Outcome: RequiresJustification}).Allowed())
}
