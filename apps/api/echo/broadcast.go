package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

type broadcastApi struct {
	svc      core.BroadcastService
	mbrSvc   *member.Service
	validate *validator.Validate
}

func registerBroadcastAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := broadcastApi{
		svc:      deps.BroadcastSvc,
		mbrSvc:   deps.MemberSvc,
		validate: deps.Validate,
	}

	g.POST("/broadcast", api.send, jwt)
}

func (api *broadcastApi) send(ctx echo.Context) error {
	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpBroadcast, nil) {
		return errHttpForbidden
	}

	var data BroadcastRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BroadcastRequest")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	active := true
	filter := &member.QueryFilter{
		Roles:    data.Roles,
		ClassID:  data.ClassID,
		IsActive: &active,
	}
	recipients, err := api.mbrSvc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying recipients")
	}

	to := make([]mail.Address, 0, len(recipients))
	for _, mbr := range recipients {
		if mbr.Email == "" { // members without an email only get the telegram copy
			continue
		}
		to = append(to, mail.Address{Name: mbr.Name, Address: mbr.Email})
	}

	api.svc.SendMessages(&core.BroadcastMessage{To: to, Subject: data.Subject, Body: data.Body})
	return ctx.JSON(http.StatusOK, BroadcastResponse{Recipients: len(to)})
}

type (
	BroadcastRequest struct {
		Subject string        `json:"subject" validate:"required,max=200"`
		Body    string        `json:"body" validate:"required"`
		Roles   []member.Role `json:"roles" validate:"omitempty,dive,memberrole"`
		ClassID *int          `json:"class_id"`
	}

	BroadcastResponse struct {
		Recipients int `json:"recipients"`
	}
)
