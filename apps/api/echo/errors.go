package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/attendance"
	"github.com/beshoyehab/schoolbot/core/class"
	"github.com/beshoyehab/schoolbot/core/member"
	"github.com/beshoyehab/schoolbot/core/schoolday"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "member not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *schoolday.WrongWeekdayError:
			code = http.StatusBadRequest
			message = origErr.Error()
		default:
			if code, message = mapDomainError(origErr); code > 0 {
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var mbr member.Member
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				mbr.ID = claims.MemberID()
				mbr.TelegramID = claims.TelegramID
				mbr.Name = claims.Name
			}
			logger.Error(msg, errors.Wrap(err, msg), mbr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// mapDomainError translates well-known business errors into HTTP statuses.
// It returns 0 for errors it does not recognize.
func mapDomainError(err error) (int, interface{}) {
	switch err {
	case member.ErrNotFound, class.ErrNotFound, attendance.ErrNotFound:
		return http.StatusNotFound, errHttpNotFound.Message
	case member.ErrPermissionDenied, attendance.ErrTokenMismatch:
		// a foreign confirmation token is indistinguishable from no permission
		return http.StatusForbidden, errHttpForbidden.Message
	case schoolday.ErrInvalidFormat, attendance.ErrNoChanges, attendance.ErrEmptyRoster,
		attendance.ErrNoteOnPresent, member.ErrTelegramIDExists, class.ErrNameExists:
		return http.StatusBadRequest, err.Error()
	case attendance.ErrTokenAlreadyUsed, member.ErrHasAttendance:
		return http.StatusConflict, err.Error()
	case attendance.ErrTokenExpired, attendance.ErrWorkspaceExpired:
		return http.StatusGone, err.Error()
	}
	return 0, nil
}
