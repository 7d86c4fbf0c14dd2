//
//  Copyright © Manetu Inc. All rights reserved.
//

package grants

import "github.com/caseaccess/accessengine/pkg/core/model"

// Justification is the pending state of the grant workflow: everything the
// requester needs to fill in the justification form.  It is never stored;
// abandoning it leaves nothing behind.
type Justification struct {
	RequesterID  string             `json:"requester_id"`
	Action       model.Action       `json:"action"`
	ScopeOptions []model.GrantScope `json:"scope_options"`
	Reasons      []model.ReasonCode `json:"reasons"`
	DefaultDays  int                `json:"default_days"`
	MaxDays      int                `json:"max_days"`
	// ReturnTo is where the requester goes once the grant is created.
	ReturnTo string `json:"return_to,omitempty"`
}

// Begin builds the justification form for a request that needs a grant.
// The scope options are the target entity itself and every program the
// requester reaches it through.
func Begin(settings model.OrgSettings, requesterID string, target Target, returnTo string) *Justification {
	settings = settings.WithDefaults()

	options := []model.GrantScope{{Kind: model.ScopeEntity, ID: target.EntityID}}
	for _, u := range target.Reach.Units {
		options = append(options, model.GrantScope{Kind: model.ScopeProgram, ID: string(u)})
	}

	return &Justification{
		RequesterID:  requesterID,
		Action:       target.Action,
		ScopeOptions: options,
		Reasons:      settings.ActiveReasons(),
		DefaultDays:  settings.DefaultGrantDays,
		MaxDays:      settings.MaxGrantDays,
		ReturnTo:     returnTo,
	}
}

// Request completes a Justification.
func (j *Justification) Request(scope model.GrantScope, reasonCode, text string, days int) Request {
	return Request{
		RequesterID:   j.RequesterID,
		Scope:         scope,
		Action:        j.Action,
		ReasonCode:    reasonCode,
		Justification: text,
		Days:          days,
	}
}
