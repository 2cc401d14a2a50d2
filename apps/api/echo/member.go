package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

var (
	errMbrNotFoundInCtx  = errors.New("member object not found in echo.Context")
	errNoPermsToSetRole  = "not enough rights to assign this role"
	errNoPermsToSetClass = "not enough rights to manage this class"
)

type memberApi struct {
	svc      *member.Service
	validate *validator.Validate
}

func registerMemberAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := memberApi{
		svc:      deps.MemberSvc,
		validate: deps.Validate,
	}

	mg := g.Group("/members")

	// un-authed endpoints
	mg.POST("/login", api.login)

	// authed endpoints
	ag := mg.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.POST("/register", api.create)
	ag.GET("", api.query, staffMiddleware(api.svc))
	ag.DELETE("", api.destroyMultiple)
	ag.GET("/roles", api.queryRoles, staffMiddleware(api.svc))

	// detail endpoints
	dg := ag.Group("/:id", ctxMemberOrStaffMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.PUT("/role", api.reassignRole)
	dg.DELETE("", api.destroy)
}

// Handlers

func (api *memberApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := authenticate(ctx, data.TelegramID, data.Password, api.svc)
	if err != nil {
		if errors.Cause(err) == member.ErrNotFound {
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *memberApi) create(ctx echo.Context) error {
	var data member.NewMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}

	ctxMbr, err := getContextMember(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, data.ClassID) {
		return errHttpForbidden
	}
	if !member.CanAssignRole(ctxMbr.Role, data.Role) && data.Role != member.RoleStudent {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}

	if err = data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	mbr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating member")
	}
	return ctx.JSON(http.StatusCreated, mbr)
}

func (api *memberApi) query(ctx echo.Context) error {
	filter := new(member.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []member.Member{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := api.svc.Filter(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if members == nil {
		members = []member.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *memberApi) retrieve(ctx echo.Context) error {
	mbr, ok := ctx.Get("object").(member.Member)
	if !ok {
		return errors.Wrap(errMbrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, mbr)
}

func (api *memberApi) update(ctx echo.Context) error {
	mbr, ok := ctx.Get("object").(member.Member)
	if !ok {
		return errors.Wrap(errMbrNotFoundInCtx, "retrieving object from context")
	}

	var data member.UpdateMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMember")
	}

	ctxMbr, err := getContextMember(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if ctxMbr.ID != mbr.ID {
		if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, mbr.ClassID) {
			return errHttpForbidden
		}
	} else if data.IsActive != nil || data.ClassID != nil {
		// members cannot reactivate or move themselves
		if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, mbr.ClassID) {
			return errHttpForbidden
		}
	}
	if data.ClassID != nil && !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, data.ClassID) {
		return core.NewValidationError(nil, core.FieldError{Field: "class_id", Error: errNoPermsToSetClass})
	}

	if err = data.Validate(api.validate, mbr); err != nil {
		return err
	}

	mbr, err = api.svc.Update(ctx.Request().Context(), mbr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating member")
	}
	return ctx.JSON(http.StatusOK, mbr)
}

func (api *memberApi) reassignRole(ctx echo.Context) error {
	mbr, ok := ctx.Get("object").(member.Member)
	if !ok {
		return errors.Wrap(errMbrNotFoundInCtx, "retrieving object from context")
	}

	var data RoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	ctxMbr, err := getContextMember(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpReassignRole, mbr.ClassID) {
		return errHttpForbidden
	}
	// both the current and the new rank must be within the actor's reach
	if !member.CanAssignRole(ctxMbr.Role, data.Role) || !member.CanAssignRole(ctxMbr.Role, mbr.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}

	mbr, err = api.svc.SetRole(ctx.Request().Context(), mbr.ID, data.Role)
	if err != nil {
		return errors.Wrap(err, "reassigning role")
	}
	return ctx.JSON(http.StatusOK, mbr)
}

func (api *memberApi) destroy(ctx echo.Context) error {
	mbr, ok := ctx.Get("object").(member.Member)
	if !ok {
		return errors.Wrap(errMbrNotFoundInCtx, "retrieving object from context")
	}

	// Say No to Suicide! ctxMember cannot delete themselves
	ctxMbr, err := getContextMember(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if mbr.ID == ctxMbr.ID {
		return errHttpForbidden
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, mbr.ClassID) {
		return errHttpForbidden
	}

	if err = api.svc.Delete(ctx.Request().Context(), mbr.ID); err != nil {
		return errors.Wrap(err, "deleting member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memberApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	ctxMbr, err := getContextMember(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, nil) {
		return errHttpForbidden
	}
	// Say No to Suicide! ctxMember cannot delete themselves
	for _, id := range query.IDs {
		if id == ctxMbr.ID {
			return errHttpForbidden
		}
	}

	if err = api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting members")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memberApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, member.Roles)
}

func (api *memberApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// Middleware

// staffMiddleware only lets Teacher rank and above through.
func staffMiddleware(svc *member.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxMbr, err := getContextMember(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context member")
			}
			if !ctxMbr.IsStaff() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// ctxMemberOrStaffMiddleware loads the target member into the context when the
// actor is either the target themselves or staff.
func ctxMemberOrStaffMiddleware(svc *member.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxMbr, err := getContextMember(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context member")
			}

			id, err := strconv.Atoi(ctx.Param("id"))
			if err != nil {
				return errHttpNotFound
			}
			if id == ctxMbr.ID || ctxMbr.IsStaff() {
				if mbr, err := svc.GetByID(ctx.Request().Context(), id); err == nil {
					ctx.Set("object", mbr)
					return next(ctx)
				} else if errors.Cause(err) != member.ErrNotFound {
					return errors.Wrap(err, "finding member by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

type (
	LoginRequest struct {
		TelegramID int64  `json:"telegram_id" validate:"required"`
		Password   string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	RoleRequest struct {
		Role member.Role `json:"role" validate:"required,memberrole"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []int `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(lr)
}
