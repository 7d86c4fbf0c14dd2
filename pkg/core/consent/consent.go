//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package consent decides whether content authored in one unit may be shown
// from the context of another.
//
// The filter is not applied automatically.  Each surface that renders
// unit-authored content calls [Checker.Filter] with its own [Surface], and a
// new surface has to be added to the enumeration deliberately.
package consent

import (
	"context"

	"github.com/caseaccess/accessengine/internal/core/metrics"
	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/lookup"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/pkg/errors"
)

var (
	logger    = logging.GetLogger("accessengine.consent")
	errNoUnit = errors.New("content has no authoring unit")
)

// Surface names a place that displays unit-authored content.
type Surface string

const (
	Listing     Surface = "listing"
	Detail      Surface = "detail"
	InlineNotes Surface = "inline_notes"
)

// Surfaces lists every surface that applies the filter.
func Surfaces() []Surface {
	return []Surface{Listing, Detail, InlineNotes}
}

// Valid reports whether s is one of [Surfaces].
func (s Surface) Valid() bool {
	for _, v := range Surfaces() {
		if v == s {
			return true
		}
	}
	return false
}

// Content is one item authored under a unit, such as a case note.
type Content struct {
	ID            string       `json:"id"`
	EntityID      string       `json:"entity_id"`
	AuthoringUnit model.UnitID `json:"authoring_unit"`
	Kind          string       `json:"kind,omitempty"`
	Body          string       `json:"body,omitempty"`
}

// Viewer is the user the content would be shown to.
type Viewer struct {
	UserID      string
	Assignments []model.Assignment
}

// Checker evaluates consent against unit sharing settings.
type Checker struct {
	directory backend.Directory
}

// NewChecker creates a Checker.
func NewChecker(directory backend.Directory) *Checker {
	return &Checker{directory: directory}
}

func (c *Checker) scope(ctx context.Context, unit model.UnitID) lookup.Result[model.ConsentScope] {
	if unit == "" {
		return lookup.Failed[model.ConsentScope](errNoUnit)
	}
	return lookup.Of(c.directory.ConsentScope(ctx, unit))
}

// Permitted reports whether item may be shown to viewer.  When sharing is
// off for the authoring unit the viewer must hold an assignment in that
// exact unit.  Anything undeterminable is refused.
func (c *Checker) Permitted(ctx context.Context, item Content, viewer Viewer) bool {
	return c.permitted(item, viewer, c.scope(ctx, item.AuthoringUnit))
}

func (c *Checker) permitted(item Content, viewer Viewer, scope lookup.Result[model.ConsentScope]) bool {
	if scope.Failed() {
		logger.Warnf(viewer.UserID, "Permitted", "consent for %s undeterminable, excluding: %v", item.ID, scope.Err())
		metrics.FailClosed(metrics.StageConsent)
		return false
	}
	if scope.Or(model.ConsentScope{}).CrossUnitSharingEnabled {
		return true
	}
	return model.HoldsRoleIn(viewer.Assignments, item.AuthoringUnit)
}

// Filter keeps the items of a collection that viewer may see on surface.
// Sharing settings are looked up once per authoring unit.
func (c *Checker) Filter(ctx context.Context, surface Surface, items []Content, viewer Viewer) []Content {
	if !surface.Valid() {
		logger.Warnf(viewer.UserID, "Filter", "unknown surface %q, excluding %d items", surface, len(items))
		return []Content{}
	}

	scopes := make(map[model.UnitID]lookup.Result[model.ConsentScope])
	out := make([]Content, 0, len(items))
	for _, item := range items {
		scope, ok := scopes[item.AuthoringUnit]
		if !ok {
			scope = c.scope(ctx, item.AuthoringUnit)
			scopes[item.AuthoringUnit] = scope
		}
		if c.permitted(item, viewer, scope) {
			out = append(out, item)
		}
	}

	logger.Debugf(viewer.UserID, "Filter", "%s: %d of %d items permitted", surface, len(out), len(items))
	return out
}
