//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package tier adapts a tier-3 matrix state to the organisation's configured
// tier.  It is a pure function of its inputs so a tier change is a single
// setting flip with no migration.
package tier

import "github.com/caseaccess/accessengine/pkg/core/model"

// Source identifies where per-field visibility comes from at a tier.
type Source int

const (
	// SafeDefaults is the fixed, non-editable tier-1 field map.
	SafeDefaults Source = iota
	// Configured is the administrator-maintained field configuration.
	Configured
)

func (s Source) String() string {
	if s == SafeDefaults {
		return "safe-defaults"
	}
	return "configured"
}

// EffectiveState returns the state enforced for base at t.
//
// GATED relaxes to ALLOW below tier 3.  PER_FIELD relaxes to ALLOW at tier 1,
// where fields then resolve from the safe defaults.  Every other state passes
// through unchanged.
func EffectiveState(base model.PolicyState, t model.Tier) model.PolicyState {
	switch {
	case base == model.Gated && t < model.Tier3:
		return model.Allow
	case base == model.PerField && t <= model.Tier1:
		return model.Allow
	default:
		return base
	}
}

// FieldSource reports which field map applies at t.
func FieldSource(t model.Tier) Source {
	if t <= model.Tier1 {
		return SafeDefaults
	}
	return Configured
}

// Relaxed reports whether t changed base.
func Relaxed(base model.PolicyState, t model.Tier) bool {
	return EffectiveState(base, t) != base
}
