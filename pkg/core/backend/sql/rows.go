//
//  Copyright © Manetu Inc. All rights reserved.
//

package sql

import (
	"encoding/json"
	"time"

	"github.com/caseaccess/accessengine/pkg/core/model"
)

type unitRow struct {
	ID                      string `gorm:"primaryKey"`
	CrossUnitSharingEnabled bool   `gorm:"not null;default:false"`
}

func (unitRow) TableName() string { return "units" }

type assignmentRow struct {
	UserID string `gorm:"primaryKey"`
	Role   string `gorm:"primaryKey"`
	// empty for organisation-wide assignments
	UnitID string `gorm:"primaryKey"`
}

func (assignmentRow) TableName() string { return "assignments" }

type entityUnitRow struct {
	EntityID string `gorm:"primaryKey"`
	UnitID   string `gorm:"primaryKey"`
	Position int    `gorm:"not null;default:0"`
}

func (entityUnitRow) TableName() string { return "entity_units" }

type grantRow struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	RequesterID   string `gorm:"not null;index"`
	ScopeKind     string `gorm:"not null;check:chk_grant_scope_kind,scope_kind IN ('program','entity')"`
	ScopeID       string `gorm:"not null"`
	Action        string
	ReasonCode    string    `gorm:"not null"`
	Justification string    `gorm:"not null"`
	GrantedAt     time.Time `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null;index"`
	RevokedAt     *time.Time
}

func (grantRow) TableName() string { return "grants" }

type flagRow struct {
	EntityID string `gorm:"primaryKey"`
	FlagID   string `gorm:"not null;default:''"`
	Active   bool   `gorm:"not null"`
	SetBy    string
	SetAt    time.Time
}

func (flagRow) TableName() string { return "safety_flags" }

type removalRow struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	EntityID    string `gorm:"not null;index;uniqueIndex:idx_one_pending_per_flag,where:status = 'pending'"`
	FlagID      string `gorm:"not null;default:'';uniqueIndex:idx_one_pending_per_flag"`
	RequesterID string `gorm:"not null"`
	Reason      string `gorm:"not null"`
	Status      string `gorm:"not null;index"`
	// the two-person rule holds even for writers that bypass the engine
	ReviewerID  *string `gorm:"check:chk_reviewer_not_requester,reviewer_id IS NULL OR reviewer_id <> requester_id"`
	ReviewNote  string
	RequestedAt time.Time `gorm:"not null"`
	ReviewedAt  *time.Time
}

func (removalRow) TableName() string { return "flag_removal_requests" }

type fieldAccessRow struct {
	Field  string `gorm:"primaryKey"`
	Role   string `gorm:"primaryKey"`
	Access string `gorm:"not null"`
}

func (fieldAccessRow) TableName() string { return "field_access" }

type settingsRow struct {
	ID               int    `gorm:"primaryKey"`
	Tier             int    `gorm:"not null;check:chk_tier,tier BETWEEN 1 AND 3"`
	DefaultGrantDays int    `gorm:"not null"`
	MaxGrantDays     int    `gorm:"not null"`
	Reasons          string `gorm:"type:text;not null"`
}

func (settingsRow) TableName() string { return "org_settings" }

func allTables() []interface{} {
	return []interface{}{
		&unitRow{}, &assignmentRow{}, &entityUnitRow{},
		&grantRow{}, &flagRow{}, &removalRow{},
		&fieldAccessRow{}, &settingsRow{},
	}
}

func toGrantRow(g *model.Grant) *grantRow {
	return &grantRow{
		ID:            g.ID,
		RequesterID:   g.RequesterID,
		ScopeKind:     string(g.Scope.Kind),
		ScopeID:       g.Scope.ID,
		Action:        string(g.Action),
		ReasonCode:    g.ReasonCode,
		Justification: g.Justification,
		GrantedAt:     g.GrantedAt,
		ExpiresAt:     g.ExpiresAt,
		RevokedAt:     g.RevokedAt,
	}
}

func (r *grantRow) grant() *model.Grant {
	return &model.Grant{
		ID:            r.ID,
		RequesterID:   r.RequesterID,
		Scope:         model.GrantScope{Kind: model.ScopeKind(r.ScopeKind), ID: r.ScopeID},
		Action:        model.Action(r.Action),
		ReasonCode:    r.ReasonCode,
		Justification: r.Justification,
		GrantedAt:     r.GrantedAt.UTC(),
		ExpiresAt:     r.ExpiresAt.UTC(),
		RevokedAt:     utc(r.RevokedAt),
	}
}

func toRemovalRow(r *model.RemovalRequest) *removalRow {
	row := &removalRow{
		ID:          r.ID,
		EntityID:    r.EntityID,
		FlagID:      r.FlagID,
		RequesterID: r.RequesterID,
		Reason:      r.Reason,
		Status:      string(r.Status),
		ReviewNote:  r.ReviewNote,
		RequestedAt: r.RequestedAt,
		ReviewedAt:  r.ReviewedAt,
	}
	if r.ReviewerID != "" {
		reviewer := r.ReviewerID
		row.ReviewerID = &reviewer
	}
	return row
}

func (r *removalRow) request() *model.RemovalRequest {
	out := &model.RemovalRequest{
		ID:          r.ID,
		EntityID:    r.EntityID,
		FlagID:      r.FlagID,
		RequesterID: r.RequesterID,
		Reason:      r.Reason,
		Status:      model.RemovalStatus(r.Status),
		ReviewNote:  r.ReviewNote,
		RequestedAt: r.RequestedAt.UTC(),
		ReviewedAt:  utc(r.ReviewedAt),
	}
	if r.ReviewerID != nil {
		out.ReviewerID = *r.ReviewerID
	}
	return out
}

func toSettingsRow(s model.OrgSettings) (*settingsRow, error) {
	reasons, err := json.Marshal(s.Reasons)
	if err != nil {
		return nil, err
	}
	return &settingsRow{
		ID:               1,
		Tier:             int(s.Tier),
		DefaultGrantDays: s.DefaultGrantDays,
		MaxGrantDays:     s.MaxGrantDays,
		Reasons:          string(reasons),
	}, nil
}

func (r *settingsRow) settings() (model.OrgSettings, error) {
	var reasons []model.ReasonCode
	if err := json.Unmarshal([]byte(r.Reasons), &reasons); err != nil {
		return model.OrgSettings{}, err
	}
	return model.OrgSettings{
		Tier:             model.Tier(r.Tier),
		DefaultGrantDays: r.DefaultGrantDays,
		MaxGrantDays:     r.MaxGrantDays,
		Reasons:          reasons,
	}, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
