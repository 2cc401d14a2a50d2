package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/beshoyehab/schoolbot/core/class"
	"github.com/beshoyehab/schoolbot/core/member"
)

type classApi struct {
	svc      *class.Service
	mbrSvc   *member.Service
	validate *validator.Validate
}

func registerClassAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := classApi{
		svc:      deps.ClassSvc,
		mbrSvc:   deps.MemberSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/classes", jwt)
	cg.POST("", api.create)
	cg.GET("", api.queryAll)
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
	cg.GET("/:id/roster", api.roster)
	cg.PUT("/:id/members/:memberID", api.enroll)
	cg.DELETE("/:id/members/:memberID", api.unlink)
}

// Handlers

func (api *classApi) create(ctx echo.Context) error {
	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, nil) {
		return errHttpForbidden
	}

	var data class.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classApi) queryAll(ctx echo.Context) error {
	classes, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	id, err := classID(ctx)
	if err != nil {
		return err
	}
	cls, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) update(ctx echo.Context) error {
	id, err := classID(ctx)
	if err != nil {
		return err
	}

	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, &id) {
		return errHttpForbidden
	}

	var data class.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	if err = data.Validate(api.validate, orig); err != nil {
		return err
	}

	cls, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) destroy(ctx echo.Context) error {
	id, err := classID(ctx)
	if err != nil {
		return err
	}

	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, nil) {
		return errHttpForbidden
	}

	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) roster(ctx echo.Context) error {
	id, err := classID(ctx)
	if err != nil {
		return err
	}

	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpEditAttendance, &id) {
		return errHttpForbidden
	}

	roster, err := api.svc.Roster(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "loading roster")
	}
	if roster == nil {
		roster = []member.Member{}
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *classApi) enroll(ctx echo.Context) error {
	id, target, err := api.membershipParams(ctx)
	if err != nil {
		return err
	}

	if _, err = api.svc.GetByID(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	mbr, err := api.mbrSvc.SetClass(ctx.Request().Context(), target.ID, &id)
	if err != nil {
		return errors.Wrap(err, "enrolling member")
	}
	return ctx.JSON(http.StatusOK, mbr)
}

// unlink detaches a member from the class. Their attendance history stays.
func (api *classApi) unlink(ctx echo.Context) error {
	id, target, err := api.membershipParams(ctx)
	if err != nil {
		return err
	}
	if !target.InClass(id) {
		return errHttpNotFound
	}

	if _, err = api.mbrSvc.SetClass(ctx.Request().Context(), target.ID, nil); err != nil {
		return errors.Wrap(err, "unlinking member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// membershipParams resolves both path params and gates roster management on
// the class and on the member's current class.
func (api *classApi) membershipParams(ctx echo.Context) (int, member.Member, error) {
	id, err := classID(ctx)
	if err != nil {
		return 0, member.Member{}, err
	}
	memberID, err := strconv.Atoi(ctx.Param("memberID"))
	if err != nil {
		return 0, member.Member{}, errHttpNotFound
	}

	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return 0, member.Member{}, errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, &id) {
		return 0, member.Member{}, errHttpForbidden
	}

	target, err := api.mbrSvc.GetByID(ctx.Request().Context(), memberID)
	if err != nil {
		return 0, member.Member{}, errors.Wrap(err, "finding member by ID")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpManageRoster, target.ClassID) {
		return 0, member.Member{}, errHttpForbidden
	}
	return id, target, nil
}

func classID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}
