package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/beshoyehab/schoolbot/core/attendance"
	"github.com/beshoyehab/schoolbot/core/class"
	"github.com/beshoyehab/schoolbot/core/member"
	"github.com/beshoyehab/schoolbot/core/schoolday"
)

type attendanceApi struct {
	svc        *attendance.Service
	workspaces *attendance.Manager
	confirmer  *attendance.Confirmer
	classSvc   *class.Service
	mbrSvc     *member.Service
	validate   *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := attendanceApi{
		svc:        deps.AttSvc,
		workspaces: deps.Workspaces,
		confirmer:  deps.Confirmer,
		classSvc:   deps.ClassSvc,
		mbrSvc:     deps.MemberSvc,
		validate:   deps.Validate,
	}

	ag := g.Group("/attendance", jwt)
	ag.GET("/days", api.classDays)
	ag.POST("/records", api.mark)
	ag.POST("/confirm", api.confirm)
	ag.POST("/cancel", api.cancel)

	cg := ag.Group("/classes/:id")
	cg.GET("/reasons", api.absenceReasons)
	cg.GET("/days/:date", api.day)
	cg.GET("/days/:date/stats", api.dayStats)

	wg := cg.Group("/days/:date/workspace")
	wg.POST("", api.openWorkspace)
	wg.GET("", api.viewWorkspace)
	wg.DELETE("", api.discardWorkspace)
	wg.PUT("/mark-all", api.markAll)
	wg.PUT("/members/:memberID/toggle", api.toggle)
	wg.PUT("/members/:memberID/note", api.setNote)
	wg.POST("/propose", api.propose)

	mg := ag.Group("/members/:id")
	mg.GET("/history", api.history)
	mg.GET("/stats", api.memberStats)
}

// Handlers

// classDays is the date picker: the surrounding class days and the class days
// of the requested month (the current one when year/month are omitted).
func (api *attendanceApi) classDays(ctx echo.Context) error {
	cal := api.svc.Calendar()
	now := time.Now().UTC()

	year, month := now.Year(), now.Month()
	if y, err := strconv.Atoi(ctx.QueryParam("year")); err == nil {
		year = y
	}
	if m, err := strconv.Atoi(ctx.QueryParam("month")); err == nil {
		if m < 1 || m > 12 {
			return schoolday.ErrInvalidFormat
		}
		month = time.Month(m)
	}

	days := cal.InMonth(year, month)
	keys := make([]string, 0, len(days))
	for _, d := range days {
		keys = append(keys, schoolday.Key(d))
	}
	return ctx.JSON(http.StatusOK, ClassDaysResponse{
		Last:  schoolday.Key(cal.Last(now)),
		Next:  schoolday.Key(cal.Next(now)),
		Month: keys,
	})
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data MarkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}
	date, err := api.svc.Calendar().Validate(data.Date)
	if err != nil {
		return err
	}

	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpEditAttendance, data.ClassID) {
		return errHttpForbidden
	}

	rec, err := api.svc.Upsert(ctx.Request().Context(), attendance.NewRecord{
		MemberID: data.MemberID,
		ClassID:  data.ClassID,
		Date:     date,
		Present:  *data.Present,
		Note:     data.Note,
	}, ctxMbr.ID)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) day(ctx echo.Context) error {
	classID, date, err := api.dayParams(ctx)
	if err != nil {
		return err
	}
	if err = api.requireEditPerm(ctx, classID); err != nil {
		return err
	}

	recs, err := api.svc.RosterAttendance(ctx.Request().Context(), classID, date)
	if err != nil {
		return errors.Wrap(err, "loading day attendance")
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) dayStats(ctx echo.Context) error {
	classID, date, err := api.dayParams(ctx)
	if err != nil {
		return err
	}
	if err = api.requireEditPerm(ctx, classID); err != nil {
		return err
	}

	stats, err := api.svc.DayStats(ctx.Request().Context(), classID, date)
	if err != nil {
		return errors.Wrap(err, "computing day stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attendanceApi) absenceReasons(ctx echo.Context) error {
	classID, err := classID(ctx)
	if err != nil {
		return err
	}
	from, to, err := rangeParams(ctx)
	if err != nil {
		return err
	}

	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpViewAnalytics, &classID) {
		return errHttpForbidden
	}

	breakdown, err := api.svc.AbsenceReasons(ctx.Request().Context(), classID, from, to)
	if err != nil {
		return errors.Wrap(err, "computing absence reasons")
	}
	return ctx.JSON(http.StatusOK, breakdown)
}

// Workspace handlers

func (api *attendanceApi) openWorkspace(ctx echo.Context) error {
	classID, date, err := api.dayParams(ctx)
	if err != nil {
		return err
	}
	ctxMbr, err := api.editPermMember(ctx, classID)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	roster, err := api.classSvc.Roster(rctx, classID)
	if err != nil {
		return errors.Wrap(err, "loading roster")
	}
	if len(roster) == 0 {
		return attendance.ErrEmptyRoster
	}
	stored, err := api.svc.RosterAttendance(rctx, classID, date)
	if err != nil {
		return errors.Wrap(err, "loading day attendance")
	}
	current := make(map[int]attendance.Record, len(stored))
	for _, rec := range stored {
		current[rec.MemberID] = rec
	}

	// committed records pre-fill their entries; unmarked members start absent
	entries := make([]attendance.Entry, 0, len(roster))
	for _, mbr := range roster {
		entry := attendance.Entry{MemberID: mbr.ID, Name: mbr.Name}
		if rec, ok := current[mbr.ID]; ok {
			entry.Present = rec.Present
			entry.Note = rec.Note
		}
		entries = append(entries, entry)
	}

	ws := api.workspaces.Seed(ctxMbr.ID, classID, date, entries)
	return ctx.JSON(http.StatusCreated, newWorkspaceResponse(ws))
}

func (api *attendanceApi) viewWorkspace(ctx echo.Context) error {
	ws, err := api.contextWorkspace(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newWorkspaceResponse(ws))
}

func (api *attendanceApi) discardWorkspace(ctx echo.Context) error {
	classID, date, err := api.dayParams(ctx)
	if err != nil {
		return err
	}
	ctxMbr, err := api.editPermMember(ctx, classID)
	if err != nil {
		return err
	}
	api.workspaces.Discard(ctxMbr.ID, classID, date)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) toggle(ctx echo.Context) error {
	ws, err := api.contextWorkspace(ctx)
	if err != nil {
		return err
	}
	memberID, err := strconv.Atoi(ctx.Param("memberID"))
	if err != nil {
		return errHttpNotFound
	}

	entry, err := ws.Toggle(memberID)
	if err != nil {
		return errors.Wrap(err, "toggling mark")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *attendanceApi) setNote(ctx echo.Context) error {
	ws, err := api.contextWorkspace(ctx)
	if err != nil {
		return err
	}
	memberID, err := strconv.Atoi(ctx.Param("memberID"))
	if err != nil {
		return errHttpNotFound
	}

	var data NoteRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NoteRequest")
	}

	entry, err := ws.SetNote(memberID, data.Note)
	if err != nil {
		return errors.Wrap(err, "setting note")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *attendanceApi) markAll(ctx echo.Context) error {
	ws, err := api.contextWorkspace(ctx)
	if err != nil {
		return err
	}

	var data MarkAllRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAllRequest")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	ws.SetAll(*data.Present)
	return ctx.JSON(http.StatusOK, newWorkspaceResponse(ws))
}

func (api *attendanceApi) propose(ctx echo.Context) error {
	ws, err := api.contextWorkspace(ctx)
	if err != nil {
		return err
	}

	prop, err := api.confirmer.Propose(ctx.Request().Context(), ws)
	if err != nil {
		return errors.Wrap(err, "staging proposal")
	}
	return ctx.JSON(http.StatusCreated, prop)
}

func (api *attendanceApi) confirm(ctx echo.Context) error {
	ctxMbr, data, err := api.tokenRequest(ctx)
	if err != nil {
		return err
	}

	recs, err := api.confirmer.Confirm(ctx.Request().Context(), ctxMbr.ID, data.Token)
	if err != nil {
		return errors.Wrap(err, "confirming proposal")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) cancel(ctx echo.Context) error {
	ctxMbr, data, err := api.tokenRequest(ctx)
	if err != nil {
		return err
	}

	if err = api.confirmer.Cancel(ctxMbr.ID, data.Token); err != nil {
		return errors.Wrap(err, "canceling proposal")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Member history handlers

func (api *attendanceApi) history(ctx echo.Context) error {
	memberID, err := api.targetMemberID(ctx)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))

	recs, err := api.svc.History(ctx.Request().Context(), memberID, optionalClassID(ctx), limit)
	if err != nil {
		return errors.Wrap(err, "loading history")
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) memberStats(ctx echo.Context) error {
	memberID, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	from, to, err := rangeParams(ctx)
	if err != nil {
		return err
	}

	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpViewAnalytics, nil) {
		return errHttpForbidden
	}

	stats, err := api.svc.MemberStats(ctx.Request().Context(), memberID, optionalClassID(ctx), from, to)
	if err != nil {
		return errors.Wrap(err, "computing member stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

// Helpers

func (api *attendanceApi) dayParams(ctx echo.Context) (int, time.Time, error) {
	id, err := classID(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}
	date, err := api.svc.Calendar().Validate(ctx.Param("date"))
	if err != nil {
		return 0, time.Time{}, err
	}
	return id, date, nil
}

func (api *attendanceApi) editPermMember(ctx echo.Context, classID int) (member.Member, error) {
	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return member.Member{}, errors.Wrap(err, "getting context member")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpEditAttendance, &classID) {
		return member.Member{}, errHttpForbidden
	}
	return ctxMbr, nil
}

func (api *attendanceApi) requireEditPerm(ctx echo.Context, classID int) error {
	_, err := api.editPermMember(ctx, classID)
	return err
}

func (api *attendanceApi) contextWorkspace(ctx echo.Context) (*attendance.Workspace, error) {
	classID, date, err := api.dayParams(ctx)
	if err != nil {
		return nil, err
	}
	ctxMbr, err := api.editPermMember(ctx, classID)
	if err != nil {
		return nil, err
	}
	ws, err := api.workspaces.Get(ctxMbr.ID, classID, date)
	if err != nil {
		return nil, errors.Wrap(err, "getting workspace")
	}
	return ws, nil
}

func (api *attendanceApi) tokenRequest(ctx echo.Context) (member.Member, TokenRequest, error) {
	var data TokenRequest
	if err := ctx.Bind(&data); err != nil {
		return member.Member{}, data, errors.Wrap(err, "binding to TokenRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return member.Member{}, data, err
	}
	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return member.Member{}, data, errors.Wrap(err, "getting context member")
	}
	return ctxMbr, data, nil
}

// targetMemberID resolves the :id param and enforces self-or-permitted access.
func (api *attendanceApi) targetMemberID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}

	ctxMbr, err := getContextMember(ctx, api.mbrSvc)
	if err != nil {
		return 0, errors.Wrap(err, "getting context member")
	}
	if ctxMbr.ID == id {
		return id, nil
	}

	target, err := api.mbrSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == member.ErrNotFound {
			return 0, errHttpNotFound
		}
		return 0, errors.Wrap(err, "finding member by ID")
	}
	if !member.CanPerform(ctxMbr.Role, ctxMbr.ClassID, member.OpEditAttendance, target.ClassID) {
		return 0, errHttpForbidden
	}
	return id, nil
}

// optionalClassID reads the class_id query param, nil when absent.
func optionalClassID(ctx echo.Context) *int {
	if id, err := strconv.Atoi(ctx.QueryParam("class_id")); err == nil {
		return &id
	}
	return nil
}

func rangeParams(ctx echo.Context) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(schoolday.DateLayout, ctx.QueryParam("from"), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, schoolday.ErrInvalidFormat
	}
	to, err := time.ParseInLocation(schoolday.DateLayout, ctx.QueryParam("to"), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, schoolday.ErrInvalidFormat
	}
	return from, to, nil
}

// Bindings

type (
	MarkRequest struct {
		MemberID int    `json:"member_id" validate:"required"`
		ClassID  *int   `json:"class_id"`
		Date     string `json:"date" validate:"required"`
		Present  *bool  `json:"present" validate:"required"`
		Note     string `json:"note"`
	}

	NoteRequest struct {
		Note string `json:"note"`
	}

	MarkAllRequest struct {
		Present *bool `json:"present" validate:"required"`
	}

	TokenRequest struct {
		Token string `json:"token" validate:"required"`
	}

	ClassDaysResponse struct {
		Last  string   `json:"last"`
		Next  string   `json:"next"`
		Month []string `json:"month"`
	}

	WorkspaceResponse struct {
		ClassID int                `json:"class_id"`
		Date    string             `json:"date"`
		Entries []attendance.Entry `json:"entries"`
	}
)

func newWorkspaceResponse(ws *attendance.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ClassID: ws.ClassID,
		Date:    schoolday.Key(ws.Date),
		Entries: ws.Entries(),
	}
}
