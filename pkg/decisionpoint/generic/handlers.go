//
//  Copyright © Manetu Inc. All rights reserved.
//

package generic

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core"
	"github.com/caseaccess/accessengine/pkg/core/grants"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/options"
	"github.com/caseaccess/accessengine/pkg/core/types"
	"github.com/labstack/echo/v4"
)

type handlers struct {
	ae core.AccessEngine
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusOf = map[common.Code]int{
	common.CodeInvalidRequest:    http.StatusBadRequest,
	common.CodeInvalidDuration:   http.StatusBadRequest,
	common.CodeInvalidReason:     http.StatusBadRequest,
	common.CodeNotOwner:          http.StatusForbidden,
	common.CodeSelfReview:        http.StatusForbidden,
	common.CodeNotQualified:      http.StatusForbidden,
	common.CodeForbidden:         http.StatusForbidden,
	common.CodeFieldConfigLocked: http.StatusForbidden,
	common.CodeNotFound:          http.StatusNotFound,
	common.CodeAlreadyResolved:   http.StatusConflict,
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = c.JSON(he.Code, errorBody{Code: http.StatusText(he.Code), Message: http.StatusText(he.Code)})
		return
	}

	status := http.StatusInternalServerError
	body := errorBody{Code: "INTERNAL", Message: "internal error"}
	if code, ok := common.CodeOf(err); ok {
		if s, known := statusOf[code]; known {
			status = s
		}
		body = errorBody{Code: string(code), Message: err.Error()}
	}
	if status == http.StatusInternalServerError {
		logger.Errorf(agent, c.Path(), "request failed: %+v", err)
	}
	_ = c.JSON(status, body)
}

func badRequest(err error) error {
	return common.NewError(common.CodeInvalidRequest, "%v", err)
}

func (h *handlers) decision(c echo.Context) error {
	var req types.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	probe, _ := strconv.ParseBool(c.QueryParam("probe"))

	d, err := h.ae.Evaluate(c.Request().Context(), &req,
		options.SetProbeMode(probe),
		options.WithReturnTo(c.QueryParam("return_to")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *handlers) createGrant(c echo.Context) error {
	var req grants.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	g, err := h.ae.CreateGrant(c.Request().Context(), model.OrgSettings{}, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *handlers) listGrants(c echo.Context) error {
	all, _ := strconv.ParseBool(c.QueryParam("all"))
	entries, err := h.ae.ListGrants(c.Request().Context(), model.OrgSettings{}, c.QueryParam("viewer"), all)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *handlers) revokeGrant(c echo.Context) error {
	if err := h.ae.RevokeGrant(c.Request().Context(), c.Param("id"), c.QueryParam("actor")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type actorBody struct {
	Actor string `json:"actor"`
}

func (h *handlers) setFlag(c echo.Context) error {
	var body actorBody
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	flag, err := h.ae.SetFlag(c.Request().Context(), c.Param("entity"), body.Actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, flag)
}

func (h *handlers) getFlag(c echo.Context) error {
	flag, err := h.ae.FlagStatus(c.Request().Context(), c.Param("entity"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, flag)
}

type removalBody struct {
	Requester string `json:"requester"`
	Reason    string `json:"reason"`
}

func (h *handlers) requestRemoval(c echo.Context) error {
	var body removalBody
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	r, err := h.ae.RequestFlagRemoval(c.Request().Context(), c.Param("entity"), body.Requester, body.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *handlers) pendingRemovals(c echo.Context) error {
	pending, err := h.ae.PendingRemovals(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pending)
}

type reviewBody struct {
	Reviewer string `json:"reviewer"`
	Approve  bool   `json:"approve"`
	Note     string `json:"note"`
}

func (h *handlers) reviewRemoval(c echo.Context) error {
	var body reviewBody
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	r, err := h.ae.ReviewFlagRemoval(c.Request().Context(), c.Param("id"), body.Reviewer, body.Approve, body.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

type fieldCell struct {
	Field  string            `json:"field"`
	Role   model.Role        `json:"role"`
	Access model.FieldAccess `json:"access"`
}

func (h *handlers) fieldConfig(c echo.Context) error {
	cfg, err := h.ae.FieldConfig(c.Request().Context())
	if err != nil {
		return err
	}
	cells := make([]fieldCell, 0, len(cfg))
	for _, name := range h.ae.Catalog().Names() {
		for _, role := range model.Roles() {
			if a, ok := cfg.Lookup(name, role); ok {
				cells = append(cells, fieldCell{Field: name, Role: role, Access: a})
			}
		}
	}
	return c.JSON(http.StatusOK, cells)
}

type accessBody struct {
	Actor  string            `json:"actor"`
	Access model.FieldAccess `json:"access"`
}

func (h *handlers) setFieldAccess(c echo.Context) error {
	role, err := model.ParseRole(c.Param("role"))
	if err != nil {
		return badRequest(err)
	}
	var body accessBody
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	key := model.FieldKey{Field: c.Param("field"), Role: role}
	if err := h.ae.SetFieldAccess(c.Request().Context(), model.OrgSettings{}, body.Actor, key, body.Access); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type resetBody struct {
	Actor string     `json:"actor"`
	Tier  model.Tier `json:"tier"`
}

func (h *handlers) resetFields(c echo.Context) error {
	var body resetBody
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	if err := h.ae.ResetFieldConfig(c.Request().Context(), model.OrgSettings{}, body.Actor, body.Tier); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type customFieldBody struct {
	Actor     string `json:"actor"`
	Name      string `json:"name"`
	Sensitive bool   `json:"sensitive"`
}

func (h *handlers) registerField(c echo.Context) error {
	var body customFieldBody
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	if err := h.ae.RegisterCustomField(c.Request().Context(), model.OrgSettings{}, body.Actor, body.Name, body.Sensitive); err != nil {
		return err
	}
	return c.NoContent(http.StatusCreated)
}

func (h *handlers) settings(c echo.Context) error {
	s, err := h.ae.Settings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *handlers) setTier(c echo.Context) error {
	var body resetBody
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	s, err := h.ae.SetTier(c.Request().Context(), body.Actor, body.Tier)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

type reasonsBody struct {
	Actor   string             `json:"actor"`
	Reasons []model.ReasonCode `json:"reasons"`
}

func (h *handlers) setReasons(c echo.Context) error {
	var body reasonsBody
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	s, err := h.ae.SetReasons(c.Request().Context(), body.Actor, body.Reasons)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}
