//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package types holds the request and decision structures exchanged with
// the access engine.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/caseaccess/accessengine/pkg/core/consent"
	"github.com/caseaccess/accessengine/pkg/core/grants"
	"github.com/caseaccess/accessengine/pkg/core/model"
)

// AnyRequest allows a request to be submitted as an unparsed JSON string or
// byte slice, an unmarshalled map, or a [Request].  This allows the caller
// to choose between convenience and efficiency.
type AnyRequest interface{}

// Target is the record an action is attempted on.
type Target struct {
	EntityID string `json:"entity_id"`
	// Fields lists the fields to resolve.  Empty resolves every catalog
	// field when the decision is made field by field.
	Fields []string `json:"fields,omitempty"`
	// Content is unit-authored content to be filtered for the viewer.
	Content []consent.Content `json:"content,omitempty"`
	// Surface is where Content will be displayed.  It defaults to
	// [consent.Detail].
	Surface consent.Surface `json:"surface,omitempty"`
}

// Request is one access attempt.
type Request struct {
	// Org carries the organisation settings for this evaluation.  A zero
	// tier selects the stored settings.
	Org    model.OrgSettings `json:"org"`
	UserID string            `json:"user_id"`
	Action model.Action      `json:"action"`
	Target Target            `json:"target"`
}

// Outcome is the answer of an evaluation.
type Outcome string

const (
	Allow                 Outcome = "ALLOW"
	Deny                  Outcome = "DENY"
	RequiresJustification Outcome = "REQUIRES_JUSTIFICATION"
)

// Decision is the engine's answer.  A DENY carries nothing but the outcome,
// so that a restricted record and a failed lookup look the same.
type Decision struct {
	Outcome   Outcome                      `json:"outcome"`
	Role      model.Role                   `json:"role,omitempty"`
	BaseState model.PolicyState            `json:"base_state,omitempty"`
	State     model.PolicyState            `json:"state,omitempty"`
	Grant     *model.Grant                 `json:"grant,omitempty"`
	Fields    map[string]model.FieldAccess `json:"fields,omitempty"`
	Content   []consent.Content            `json:"content,omitempty"`
	// Justification is set for REQUIRES_JUSTIFICATION.
	Justification *grants.Justification `json:"justification,omitempty"`
}

// Allowed reports whether the outcome is ALLOW.
func (d *Decision) Allowed() bool {
	return d != nil && d.Outcome == Allow
}

// UnmarshalRequest parses a JSON string or byte slice, if required, into a
// Request.  A map is re-encoded through JSON, and a Request is passed
// through.
func UnmarshalRequest(input AnyRequest) (*Request, error) {
	var data []byte

	switch input := input.(type) {
	case *Request:
		return input, nil
	case Request:
		return &input, nil
	case string:
		data = []byte(input)
	case []byte:
		data = input
	case map[string]interface{}:
		b, err := json.Marshal(input)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		return nil, fmt.Errorf("invalid request type %T", input)
	}

	req := &Request{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, err
	}
	return req, nil
}
